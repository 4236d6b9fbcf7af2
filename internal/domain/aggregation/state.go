package aggregation

import "fmt"

// State is one step of a single aggregation request.
type State string

const (
	StateFetching             State = "fetching"
	StateNormalizing          State = "normalizing"
	StateFetchingTransactions State = "fetching_transactions"
	StateConsolidated         State = "consolidated"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// Only StateFetching may fail; every later stage degrades instead.
var transitions = map[State][]State{
	StateFetching:             {StateNormalizing, StateFailed},
	StateNormalizing:          {StateFetchingTransactions, StateConsolidated},
	StateFetchingTransactions: {StateConsolidated},
	StateConsolidated:         {StateDone},
}

// tracker records the path a request takes through the state machine.
type tracker struct {
	path []State
}

func newTracker() *tracker {
	return &tracker{path: []State{StateFetching}}
}

func (t *tracker) current() State {
	return t.path[len(t.path)-1]
}

// advance moves to next, panicking on an illegal transition since that is a
// programming error in the orchestrator.
func (t *tracker) advance(next State) {
	from := t.current()
	for _, allowed := range transitions[from] {
		if allowed == next {
			t.path = append(t.path, next)
			return
		}
	}
	panic(fmt.Sprintf("aggregation: illegal transition %s -> %s", from, next))
}

func (t *tracker) states() []State {
	out := make([]State, len(t.path))
	copy(out, t.path)
	return out
}
