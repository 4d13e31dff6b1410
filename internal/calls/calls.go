// Package calls relays WebRTC negotiation between exactly two parties. It
// never sees media: offers, answers and ICE candidates are opaque JSON that
// is forwarded to the addressed party's sessions only.
package calls

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/Kakashki-pro/Shitgram/internal/apperr"
	"github.com/Kakashki-pro/Shitgram/internal/metrics"
)

// Outbound event names.
const (
	EventIncoming = "call_incoming"
	EventSignal   = "call_signal_received"
	EventAccepted = "call_accepted"
	EventRejected = "call_rejected"
	EventEnded    = "call_ended"
)

type State int

const (
	Ringing State = iota + 1
	Connected
	Ended
)

func (s State) String() string {
	switch s {
	case Ringing:
		return "ringing"
	case Connected:
		return "connected"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Sender delivers an event to every live session of one user and reports
// how many sessions it reached.
type Sender interface {
	SendToUser(username, event string, payload any) int
}

type Incoming struct {
	From  string          `json:"from"`
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer"`
}

type SignalReceived struct {
	From   string          `json:"from"`
	Signal json.RawMessage `json:"signal"`
}

type Accepted struct {
	Caller string          `json:"caller"`
	Answer json.RawMessage `json:"answer"`
}

type Rejected struct {
	Caller string `json:"caller"`
}

type EndedEvent struct {
	To string `json:"to"`
}

// Session is one call attempt. It lives only in memory.
type Session struct {
	Caller string
	Callee string
	State  State

	timer *time.Timer
}

func (s *Session) partner(user string) string {
	if user == s.Caller {
		return s.Callee
	}
	return s.Caller
}

// Relay tracks at most one call per user.
type Relay struct {
	mu          sync.Mutex
	calls       map[string]*Session
	sender      Sender
	ringTimeout time.Duration
}

// NewRelay returns a relay. A zero ringTimeout lets a call ring until a
// party cancels it.
func NewRelay(sender Sender, ringTimeout time.Duration) *Relay {
	return &Relay{
		calls:       make(map[string]*Session),
		sender:      sender,
		ringTimeout: ringTimeout,
	}
}

// Initiate starts ringing callee on behalf of caller.
func (r *Relay) Initiate(caller, callee string, offer json.RawMessage) error {
	if caller == "" || callee == "" || len(offer) == 0 {
		return apperr.New(apperr.Validation, "from, to and offer are required")
	}
	if caller == callee {
		return apperr.New(apperr.Validation, "can't call yourself")
	}

	r.mu.Lock()
	if _, busy := r.calls[caller]; busy {
		r.mu.Unlock()
		return apperr.New(apperr.Conflict, "already in a call")
	}
	if _, busy := r.calls[callee]; busy {
		r.mu.Unlock()
		return apperr.New(apperr.Conflict, callee+" is busy")
	}
	s := &Session{Caller: caller, Callee: callee, State: Ringing}
	r.calls[caller] = s
	r.calls[callee] = s
	if r.ringTimeout > 0 {
		s.timer = time.AfterFunc(r.ringTimeout, func() { r.expire(s) })
	}
	r.mu.Unlock()

	metrics.Calls.WithLabelValues(Ringing.String(), "initiate").Inc()
	if r.sender.SendToUser(callee, EventIncoming, Incoming{From: caller, To: callee, Offer: offer}) == 0 {
		r.mu.Lock()
		r.end(s)
		r.mu.Unlock()
		metrics.Calls.WithLabelValues(Ended.String(), "offline").Inc()
		return apperr.New(apperr.NotFound, callee+" is not online")
	}
	log.Printf("Call %s -> %s ringing", caller, callee)
	return nil
}

// Accept connects a ringing call. Only the callee may accept.
func (r *Relay) Accept(callee, caller string, answer json.RawMessage) error {
	if caller == "" || len(answer) == 0 {
		return apperr.New(apperr.Validation, "caller and answer are required")
	}

	r.mu.Lock()
	s := r.calls[callee]
	if s == nil || s.Callee != callee || s.Caller != caller || s.State != Ringing {
		r.mu.Unlock()
		return apperr.New(apperr.NotFound, "no incoming call from "+caller)
	}
	s.State = Connected
	s.stopTimer()
	r.mu.Unlock()

	metrics.Calls.WithLabelValues(Connected.String(), "accept").Inc()
	log.Printf("Call %s -> %s connected", caller, callee)
	r.sender.SendToUser(caller, EventAccepted, Accepted{Caller: caller, Answer: answer})
	return nil
}

// Signal forwards an ICE candidate between the two parties of one call.
// Candidates may flow while the call is still ringing.
func (r *Relay) Signal(from, to string, signal json.RawMessage) error {
	if to == "" || len(signal) == 0 {
		return apperr.New(apperr.Validation, "to and signal are required")
	}

	r.mu.Lock()
	s := r.calls[from]
	ok := s != nil && s.partner(from) == to
	r.mu.Unlock()
	if !ok {
		return apperr.New(apperr.NotFound, "not in a call with "+to)
	}

	r.sender.SendToUser(to, EventSignal, SignalReceived{From: from, Signal: signal})
	return nil
}

// Reject declines a ringing call. Only the callee may reject.
func (r *Relay) Reject(callee, caller string) error {
	if caller == "" {
		return apperr.New(apperr.Validation, "caller is required")
	}

	r.mu.Lock()
	s := r.calls[callee]
	if s == nil || s.Callee != callee || s.Caller != caller || s.State != Ringing {
		r.mu.Unlock()
		return apperr.New(apperr.NotFound, "no incoming call from "+caller)
	}
	r.end(s)
	r.mu.Unlock()

	metrics.Calls.WithLabelValues(Ended.String(), "reject").Inc()
	log.Printf("Call %s -> %s rejected", caller, callee)
	r.sender.SendToUser(caller, EventRejected, Rejected{Caller: caller})
	return nil
}

// End hangs up the call between from and to. Ending a call that does not
// exist, or no longer exists, does nothing.
func (r *Relay) End(from, to string) error {
	if to == "" {
		return apperr.New(apperr.Validation, "to is required")
	}

	r.mu.Lock()
	s := r.calls[from]
	if s == nil || s.partner(from) != to {
		r.mu.Unlock()
		return nil
	}
	caller, callee := s.Caller, s.Callee
	r.end(s)
	r.mu.Unlock()

	metrics.Calls.WithLabelValues(Ended.String(), "end").Inc()
	log.Printf("Call %s <-> %s ended by %s", caller, callee, from)
	r.sender.SendToUser(to, EventEnded, EndedEvent{To: to})
	return nil
}

// Hangup ends whatever call user is part of, notifying the partner. The
// gateway calls it when the user's last session goes away.
func (r *Relay) Hangup(user string) {
	r.mu.Lock()
	s := r.calls[user]
	if s == nil {
		r.mu.Unlock()
		return
	}
	partner := s.partner(user)
	caller, callee := s.Caller, s.Callee
	r.end(s)
	r.mu.Unlock()

	metrics.Calls.WithLabelValues(Ended.String(), "disconnect").Inc()
	log.Printf("Call %s <-> %s ended: %s disconnected", caller, callee, user)
	r.sender.SendToUser(partner, EventEnded, EndedEvent{To: partner})
}

// Rename moves an active call entry after a username change.
func (r *Relay) Rename(oldName, newName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.calls[oldName]
	if s == nil {
		return
	}
	delete(r.calls, oldName)
	if s.Caller == oldName {
		s.Caller = newName
	} else {
		s.Callee = newName
	}
	r.calls[newName] = s
}

// Active returns a copy of the call user is part of.
func (r *Relay) Active(user string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.calls[user]
	if s == nil {
		return Session{}, false
	}
	return Session{Caller: s.Caller, Callee: s.Callee, State: s.State}, true
}

func (r *Relay) expire(s *Session) {
	r.mu.Lock()
	if r.calls[s.Caller] != s || s.State != Ringing {
		r.mu.Unlock()
		return
	}
	caller, callee := s.Caller, s.Callee
	r.end(s)
	r.mu.Unlock()

	metrics.Calls.WithLabelValues(Ended.String(), "timeout").Inc()
	log.Printf("Call %s -> %s timed out", caller, callee)
	r.sender.SendToUser(caller, EventRejected, Rejected{Caller: caller})
	r.sender.SendToUser(callee, EventEnded, EndedEvent{To: callee})
}

// end must be called with r.mu held.
func (r *Relay) end(s *Session) {
	s.State = Ended
	s.stopTimer()
	if r.calls[s.Caller] == s {
		delete(r.calls, s.Caller)
	}
	if r.calls[s.Callee] == s {
		delete(r.calls, s.Callee)
	}
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
