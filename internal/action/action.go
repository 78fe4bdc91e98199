package action

import "net/http"

type State int

const (
	Continue State = iota // 0：keep checking
	Done                  // 1：decided
)

type Action int

const (
	Undecided Action = iota // 0：Undecided
	Allow                   // 1：Accept and process
	Discard                 // 2：Acknowledge, do not process
	Reject                  // 3：Refuse with HTTPCode
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Discard:
		return "discard"
	case Reject:
		return "reject"
	default:
		return "undecided"
	}
}

// Decision saves the result of the inbound checks
type Decision struct {
	State    State
	result   Action
	HTTPCode int
	Reason   string
}

func NewDecision() *Decision {
	return &Decision{State: Continue, result: Undecided}
}

func (d *Decision) Get() Action {
	return d.result
}

func (d *Decision) Set(new State) {
	d.State = new
}

// SetCode finishes the decision.
func (d *Decision) SetCode(result Action, code int, reason string) {
	d.State = Done
	d.result = result
	d.HTTPCode = code
	d.Reason = reason
}

func (d *Decision) Accept() { d.SetCode(Allow, http.StatusAccepted, "") }

func (d *Decision) Drop(reason string) { d.SetCode(Discard, http.StatusOK, reason) }

func (d *Decision) Refuse(code int, reason string) { d.SetCode(Reject, code, reason) }
