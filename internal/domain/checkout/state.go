// Package checkout drives one sale from cart validation to an invoiced,
// durable record, or to the offline queue when the remote store is unreachable.
package checkout

import "fmt"

// State is a step of the submission pipeline.
type State string

const (
	Idle              State = "idle"
	Validating        State = "validating"
	DuplicateChecking State = "duplicate_checking"
	Reserving         State = "reserving"
	Submitting        State = "submitting"
	Finalizing        State = "finalizing"
	Completed         State = "completed"
	Queued            State = "queued"
)

// TransitionChart lists the states reachable from each state.
type TransitionChart map[State][]State

// Allowed reports whether from -> to is a legal transition.
func (c TransitionChart) Allowed(from, to State) bool {
	list, exists := c[from]
	if !exists {
		return false
	}
	for _, s := range list {
		if s == to {
			return true
		}
	}
	return false
}

// Every failure edge leads back to Idle after compensation. Queued is only
// reachable from Submitting.
var transitionChart = TransitionChart{
	Idle:              {Validating},
	Validating:        {DuplicateChecking, Idle},
	DuplicateChecking: {Reserving, Idle},
	Reserving:         {Submitting, Idle},
	Submitting:        {Finalizing, Queued, Idle},
	Finalizing:        {Completed, Idle},
}

// run tracks the state of one submission.
type run struct {
	state State
	trail []State
}

func newRun() *run {
	return &run{state: Idle, trail: []State{Idle}}
}

func (r *run) to(next State) {
	if !transitionChart.Allowed(r.state, next) {
		panic(fmt.Sprintf("checkout: illegal transition %s -> %s", r.state, next))
	}
	r.state = next
	r.trail = append(r.trail, next)
}
