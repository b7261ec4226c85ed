// Package stage is the generic game state machine. A game is a tree of stages: Atomic
// leaves interpret requests directly, Composite nodes run exactly one child at a time and
// pick the next child when the current one checks out.
//
// Stages are not safe for concurrent use. The match that owns a stage tree serializes every
// call into it under its own mutex.
package stage

import "fmt"

// Result is the outcome of delivering one event to a stage.
type Result int

const (
	// OK means the event was consumed and nothing stage-relevant changed.
	OK Result = iota
	// Checkout means the stage became terminal.
	Checkout
	// Ready marks the acting player as done for the current all-ready round.
	Ready
	// Failed means the command matched but is not valid right now; only the requester is told.
	Failed
	// Continue means the stage progressed (a new inner round or a new child) but is not terminal.
	Continue
	// NotFound means the text is not a command at this stage and propagates upward.
	NotFound
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Checkout:
		return "checkout"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Continue:
		return "continue"
	case NotFound:
		return "not_found"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// CheckoutReason records why a stage became terminal.
type CheckoutReason int

const (
	NotOver CheckoutReason = iota
	ByRequest
	ByTimeout
	ByLeave
)

func (r CheckoutReason) String() string {
	switch r {
	case NotOver:
		return "not_over"
	case ByRequest:
		return "by_request"
	case ByTimeout:
		return "by_timeout"
	case ByLeave:
		return "by_leave"
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// PlayerID is a player slot index within one match. Human slots come first, computer
// slots are appended after them.
type PlayerID int

// PlayerState is a player's activity inside a started match.
type PlayerState int

const (
	Active PlayerState = iota
	Eliminated
	Hooked
)

func (s PlayerState) String() string {
	switch s {
	case Active:
		return "active"
	case Eliminated:
		return "eliminated"
	case Hooked:
		return "hooked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// AlertFunc is called on each informational step of a timer cascade with the whole
// seconds remaining until the timeout.
type AlertFunc func(remainingSec int)

// Host is what the match orchestrator exposes to the stages it runs. Every method is called
// with the match lock already held and must not block.
type Host interface {
	Broadcast(msg string)
	Tell(pid PlayerID, msg string)
	BroadcastToGroupOnly(msg string)

	// StartTimer cancels any outstanding timer and starts a new one. A nil alert uses the
	// default "seconds remaining" announcement.
	StartTimer(seconds int, alert AlertFunc)
	StopTimer()

	Eliminate(pid PlayerID)
	Hook(pid PlayerID)
	Activate(pid PlayerID)

	PlayerCount() int
	PlayerState(pid PlayerID) PlayerState
	IsComputer(pid PlayerID) bool
	PlayerName(pid PlayerID) string
	PlayerAvatar(pid PlayerID) string
}

// Stage is one node of the state machine.
type Stage interface {
	// Name identifies the kind of stage; composites validate children by it.
	Name() string

	OnBegin()
	HandleRequest(pid PlayerID, public bool, msg string) Result
	HandleTimeout() Result
	HandleLeave(pid PlayerID) Result
	HandleComputerAct(pid PlayerID, asIfUser bool) Result

	// Reconcile re-evaluates completion after the set of active players changed.
	Reconcile() Result

	IsOver() bool
	Reason() CheckoutReason

	// HoldsTimer reports whether this stage or its active descendant started the
	// outstanding timer.
	HoldsTimer() bool
}
