// Package invalidate propagates cache invalidations between nodes.
// The invalidate channel carries identifiers only (`kind:id`,
// `kind:delete:id`, `kind:new:id`, or the bare word `all`) while the
// update channel carries full re-serialized entities for nodes that
// want to refresh instead of refetch.
package invalidate

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindClan   Kind = "clan"
	KindPlayer Kind = "player"
)

type Op string

const (
	// OpInvalidate drops the local copy; the entity still exists.
	OpInvalidate Op = "invalidate"
	// OpDelete drops the local copy because the entity is gone.
	OpDelete Op = "delete"
	// OpNew announces a freshly created entity.
	OpNew Op = "new"
	// OpAll flushes every local entry of every kind.
	OpAll Op = "all"
)

// Notice is one parsed invalidation.
type Notice struct {
	Kind Kind
	Op   Op
	ID   string
}

// Parse decodes the wire grammar. Unknown kinds, ops, or empty ids
// report false.
func Parse(payload string) (Notice, bool) {
	if payload == "all" {
		return Notice{Op: OpAll}, true
	}

	parts := strings.SplitN(payload, ":", 3)
	kind := Kind(parts[0])
	if kind != KindClan && kind != KindPlayer {
		return Notice{}, false
	}

	switch len(parts) {
	case 2:
		if parts[1] == "" {
			return Notice{}, false
		}
		return Notice{Kind: kind, Op: OpInvalidate, ID: parts[1]}, true
	case 3:
		op := Op(parts[1])
		if op != OpDelete && op != OpNew {
			return Notice{}, false
		}
		if parts[2] == "" {
			return Notice{}, false
		}
		return Notice{Kind: kind, Op: op, ID: parts[2]}, true
	}
	return Notice{}, false
}

// Format renders a Notice back into its wire form.
func Format(n Notice) string {
	switch n.Op {
	case OpAll:
		return "all"
	case OpInvalidate:
		return fmt.Sprintf("%s:%s", n.Kind, n.ID)
	default:
		return fmt.Sprintf("%s:%s:%s", n.Kind, n.Op, n.ID)
	}
}
