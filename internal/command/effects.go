package command

import "github.com/Kakashki-pro/Shitgram/internal/models"

// Effect is a side effect the gateway emits after a command ran. The set of
// effects is closed; the gateway switches over the concrete types.
type Effect interface {
	isEffect()
}

// ChatCreated announces a newly visible channel to the listed users.
type ChatCreated struct {
	To    []string
	Chat  string
	IsDM  bool
	User2 string
}

// MessagePosted delivers an already stored message to the listed users.
type MessagePosted struct {
	To      []string
	Message *models.Message
}

// ChatDeleted tells former members that a group channel is gone.
type ChatDeleted struct {
	To   []string
	Chat string
}

// Renamed rebinds live sessions and call state from Old to New.
type Renamed struct {
	Old string
	New string
}

// EasterEgg is broadcast to everyone.
type EasterEgg struct{}

func (ChatCreated) isEffect()   {}
func (MessagePosted) isEffect() {}
func (ChatDeleted) isEffect()   {}
func (Renamed) isEffect()       {}
func (EasterEgg) isEffect()     {}

// Result is the outcome of one command line. Reply is always set except for
// the easter egg, which answers with an empty reply.
type Result struct {
	Verb    string
	Reply   string
	Effects []Effect
	Err     error
}
