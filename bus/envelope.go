// Package bus is the pub/sub fabric between processes sharing one
// logical service. Every published message is wrapped in an envelope
// naming its origin node, and subscribers drop their own envelopes so a
// node never reacts to what it just said.
package bus

import "strings"

// Separator splits the origin id from the payload in an envelope.
// Origin ids therefore must not contain it; payloads may.
const Separator = "|"

// Channel names shared by every process on the bus.
const (
	ChannelInvalidate = "clansync:invalidate"
	ChannelUpdate     = "clansync:update"
	ChannelChat       = "clansync:chat"
	ChannelBroadcast  = "clansync:broadcast"
	ChannelRequest    = "clansync:request"
	ChannelOnline     = "clansync:online"
	ChannelBan        = "clansync:ban"
)

// Channels lists every channel a subscriber attaches to.
func Channels() []string {
	return []string{
		ChannelInvalidate,
		ChannelUpdate,
		ChannelChat,
		ChannelBroadcast,
		ChannelRequest,
		ChannelOnline,
		ChannelBan,
	}
}

// Wrap builds the wire form of a message: "<origin>|<payload>".
func Wrap(origin, payload string) string {
	return origin + Separator + payload
}

// Unwrap splits an envelope into origin and payload. The payload keeps
// any further separators it contains. Messages without a separator have
// no valid origin and are reported as not ok.
func Unwrap(envelope string) (origin, payload string, ok bool) {
	i := strings.Index(envelope, Separator)
	if i < 0 {
		return "", "", false
	}
	return envelope[:i], envelope[i+1:], true
}
