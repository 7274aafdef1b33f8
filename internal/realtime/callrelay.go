// Package realtime call signaling: relay opaque negotiation payloads between
// two user identities.
package realtime

import (
	"encoding/json"
	"log/slog"
)

// CallRelay forwards offer/answer/candidate/control events between two users
// without interpreting them. It keeps no per-call state: the target's current
// sessions are resolved through the presence registry at the moment of each
// relay, and an event for a user with no live sessions is silently dropped.
// Sequencing correctness is left to the two endpoints; a stray accept or
// candidate with no prior invite is relayed all the same.
type CallRelay struct {
	presence *PresenceRegistry
	logger   *slog.Logger
}

// NewCallRelay creates a relay resolving recipients through the registry.
func NewCallRelay(presence *PresenceRegistry, logger *slog.Logger) *CallRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &CallRelay{presence: presence, logger: logger}
}

// deliver sends an encoded event to every current session of a user and
// reports whether at least one session existed at relay time.
func (r *CallRelay) deliver(toUserID, event string, data any) bool {
	conns := r.presence.Connections(toUserID)
	if len(conns) == 0 {
		r.logger.Debug("call signal dropped, recipient offline",
			"event", event, "to", toUserID)
		return false
	}
	frame, err := encodeEvent(event, data)
	if err != nil {
		r.logger.Error("failed to encode call signal", "event", event, "error", err)
		return false
	}
	for _, s := range conns {
		s.enqueue(frame)
	}
	return true
}

// Invite relays an incoming-call notification to the callee's current
// sessions. It returns false when the callee has no live session, in which
// case the caller must be told the call did not go through.
func (r *CallRelay) Invite(fromUserID, toUserID, callType string, offer json.RawMessage) bool {
	return r.deliver(toUserID, EventIncomingCall, IncomingCallPayload{
		From:     fromUserID,
		CallType: callType,
		Offer:    offer,
	})
}

// Accept relays the callee's answer back to the caller.
func (r *CallRelay) Accept(toUserID string, answer json.RawMessage) bool {
	return r.deliver(toUserID, EventCallAccepted, CallAcceptedPayload{Answer: answer})
}

// Reject relays a decline back to the caller.
func (r *CallRelay) Reject(toUserID string) bool {
	return r.deliver(toUserID, EventCallRejected, nil)
}

// Candidate relays one ICE candidate to the peer. Any number may flow in
// either direction while a call is being negotiated or established.
func (r *CallRelay) Candidate(toUserID string, candidate json.RawMessage) bool {
	return r.deliver(toUserID, EventIceCandidate, IceCandidatePayload{Candidate: candidate})
}

// End relays call termination to the peer.
func (r *CallRelay) End(toUserID string) bool {
	return r.deliver(toUserID, EventCallEnded, nil)
}
