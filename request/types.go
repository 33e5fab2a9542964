// Package request implements the replicated request protocol: an
// action that needs sign-off (promote, disband, alliance, war, ...) is
// persisted to the shared store, voted on by acceptors who may be
// spread across nodes, and resolved exactly once on the node where the
// deciding vote lands.
package request

import "time"

// Type names the action a request asks sign-off for.
type Type string

const (
	TypeInvite       Type = "INVITE"
	TypePromote      Type = "PROMOTE"
	TypeDemote       Type = "DEMOTE"
	TypeDisband      Type = "DISBAND"
	TypeRename       Type = "RENAME"
	TypeCreateAlly   Type = "CREATE_ALLY"
	TypeBreakRivalry Type = "BREAK_RIVALRY"
	TypeStartWar     Type = "START_WAR"
	TypeEndWar       Type = "END_WAR"
)

// InterClan reports whether the request is addressed to another clan's
// leadership rather than the requester's own.
func (t Type) InterClan() bool {
	switch t {
	case TypeCreateAlly, TypeBreakRivalry, TypeStartWar, TypeEndWar:
		return true
	}
	return false
}

// Valid reports whether t is a known request type.
func (t Type) Valid() bool {
	switch t {
	case TypeInvite, TypePromote, TypeDemote, TypeDisband, TypeRename,
		TypeCreateAlly, TypeBreakRivalry, TypeStartWar, TypeEndWar:
		return true
	}
	return false
}

// Vote is ternary: unset until the acceptor decides.
type Vote string

const (
	VoteNone   Vote = ""
	VoteAccept Vote = "ACCEPT"
	VoteDeny   Vote = "DENY"
)

// Identity names one participant.
type Identity struct {
	UUID string `json:"uuid,omitempty"`
	Name string `json:"name"`
}

// Acceptor is one participant whose vote the request needs.
type Acceptor struct {
	Identity
	Vote Vote `json:"vote,omitempty"`
}

// Request is the replicated record. It round-trips through the shared
// store as JSON; every field that matters for resolution rides along so
// any node can pick it up.
type Request struct {
	Type      Type       `json:"type"`
	ClanTag   string     `json:"clanTag"`
	Target    string     `json:"target,omitempty"`
	Requester Identity   `json:"requester"`
	Message   string     `json:"message,omitempty"`
	Acceptors []Acceptor `json:"acceptors"`
	AskCount  int        `json:"askCount"`
	CreatedAt time.Time  `json:"createdAt"`
}

// HasAcceptor reports whether name is on the acceptor list.
func (r *Request) HasAcceptor(name string) bool {
	for i := range r.Acceptors {
		if r.Acceptors[i].Name == name {
			return true
		}
	}
	return false
}

// SetVote records name's vote. It refuses unknown acceptors and any
// vote after voting has concluded; re-votes before conclusion replace
// the earlier vote.
func (r *Request) SetVote(name string, v Vote) bool {
	if r.Concluded() {
		return false
	}
	for i := range r.Acceptors {
		if r.Acceptors[i].Name == name {
			r.Acceptors[i].Vote = v
			return true
		}
	}
	return false
}

// VoteOf returns name's current vote.
func (r *Request) VoteOf(name string) Vote {
	for i := range r.Acceptors {
		if r.Acceptors[i].Name == name {
			return r.Acceptors[i].Vote
		}
	}
	return VoteNone
}

// Accepts lists acceptors who voted to accept.
func (r *Request) Accepts() []string { return r.votedWith(VoteAccept) }

// Denies lists acceptors who voted to deny.
func (r *Request) Denies() []string { return r.votedWith(VoteDeny) }

// Pending lists acceptors who have not voted yet.
func (r *Request) Pending() []string { return r.votedWith(VoteNone) }

func (r *Request) votedWith(v Vote) []string {
	var names []string
	for i := range r.Acceptors {
		if r.Acceptors[i].Vote == v {
			names = append(names, r.Acceptors[i].Name)
		}
	}
	return names
}

// Concluded reports whether voting is over. Inter-clan requests are
// decided by the first vote from the target clan's leadership; the
// rest need every acceptor on record.
func (r *Request) Concluded() bool {
	voted := 0
	for i := range r.Acceptors {
		if r.Acceptors[i].Vote != VoteNone {
			voted++
		}
	}
	if r.Type.InterClan() {
		return voted > 0
	}
	return len(r.Acceptors) > 0 && voted == len(r.Acceptors)
}

// Accepted reports the outcome of a concluded request: accepted only
// when nobody denied.
func (r *Request) Accepted() bool {
	return len(r.Denies()) == 0
}
