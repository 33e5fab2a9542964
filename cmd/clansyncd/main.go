// clansyncd runs a standalone coordination node. It joins the bus,
// mirrors presence/chat/invalidations and logs everything it sees;
// useful for watching a cluster or soaking a config before wiring the
// layer into a real host.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sacredlabyrinth/clansync/bansync"
	"github.com/sacredlabyrinth/clansync/config"
	"github.com/sacredlabyrinth/clansync/coord"
	"github.com/sacredlabyrinth/clansync/relay"
	"github.com/sacredlabyrinth/clansync/request"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config (defaults apply when omitted)")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
	})
	if *debug {
		handler.SetLevel(charmlog.DebugLevel)
	}
	logger := slog.New(handler)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config load failed", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	c := coord.New(cfg, coord.Hooks{
		Outcomes:  logOutcomes{logger},
		Notifier:  logNotifier{logger},
		Messenger: logMessenger{logger},
		Bans:      logBans{logger},
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pool.Timeout)
	err := c.Initialize(ctx)
	cancel()
	if err != nil {
		logger.Error("initialize failed", "error", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("node running", "id", c.NodeID())
	<-sig

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

type logOutcomes struct{ log *slog.Logger }

func (o logOutcomes) Resolve(req *request.Request, accepted bool, denies []string) {
	o.log.Info("request resolved",
		"type", req.Type, "clan", req.ClanTag, "accepted", accepted, "denies", denies)
}

type logNotifier struct{ log *slog.Logger }

func (n logNotifier) Deliver(player, message string) bool {
	n.log.Info("deliver", "player", player, "message", message)
	return false
}

func (n logNotifier) NotifyLeaders(clanTag, message string, skip ...string) {
	n.log.Info("notify leaders", "clan", clanTag, "message", message)
}

type logMessenger struct{ log *slog.Logger }

func (m logMessenger) DeliverClan(clanTag, message, spy string) {
	m.log.Info("clan chat", "clan", clanTag, "message", message)
}

func (m logMessenger) DeliverAlly(clanTag, message, spy string) {
	m.log.Info("ally chat", "clan", clanTag, "message", message)
}

func (m logMessenger) DeliverPlayer(name, message string) bool {
	m.log.Info("private", "player", name, "message", message)
	return false
}

func (m logMessenger) BroadcastLocal(message string) {
	fmt.Println(message)
}

type logBans struct{ log *slog.Logger }

func (b logBans) AddBan(id uuid.UUID)    { b.log.Info("ban", "uuid", id) }
func (b logBans) RemoveBan(id uuid.UUID) { b.log.Info("unban", "uuid", id) }

var _ relay.Messenger = logMessenger{}
var _ bansync.BanStore = logBans{}
