package collection

import "fmt"

// State is a collection's lifecycle stage, per spec §4.8's state machine.
type State int

const (
	Initializing State = iota
	Loading
	Ready
	Indexing
	Compacting
	Recovering
	Deleted
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Indexing:
		return "indexing"
	case Compacting:
		return "compacting"
	case Recovering:
		return "recovering"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// transitions enumerates the legal moves out of each state. Compacting and
// Indexing both return to Ready rather than to each other directly, and
// Deleted is a sink with no outgoing edges.
var transitions = map[State][]State{
	Initializing: {Loading, Ready},
	Loading:      {Ready, Recovering},
	Ready:        {Indexing, Compacting, Deleted},
	Indexing:     {Ready, Deleted},
	Compacting:   {Ready, Deleted},
	Recovering:   {Ready, Deleted},
	Deleted:      {},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// queryEligible reports whether state permits search/get, per spec §4.8:
// "Queries are served from Ready, Indexing, Compacting."
func queryEligible(s State) bool {
	return s == Ready || s == Indexing || s == Compacting
}

// writeEligible reports whether state permits insert/update/delete, per
// spec §4.8: "Writes are served from Ready and Indexing."
func writeEligible(s State) bool {
	return s == Ready || s == Indexing
}

func (c *Collection) setState(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, to) {
		return fmt.Errorf("%w: illegal transition %s -> %s", ErrInvariant, c.state, to)
	}
	c.state = to
	return nil
}

func (c *Collection) getState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
