package lifecycle

import (
	"errors"
	"fmt"
)

// State is a controller's position in its lifecycle.
type State int

const (
	// StateNew is a controller that has not started installing
	StateNew State = iota
	// StateInstalling is pre-populating the static bucket
	StateInstalling
	// StateWaiting is installed and waiting to take over
	StateWaiting
	// StateActivating is collecting garbage before claiming
	StateActivating
	// StateActive serves requests
	StateActive
	// StateRedundant failed to install or was replaced by a newer controller
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives a state transition.
type Event int

const (
	EventInstall Event = iota
	EventInstalled
	EventInstallFailed
	EventActivate
	EventActivated
	EventSupersede
)

func (e Event) String() string {
	switch e {
	case EventInstall:
		return "install"
	case EventInstalled:
		return "installed"
	case EventInstallFailed:
		return "install_failed"
	case EventActivate:
		return "activate"
	case EventActivated:
		return "activated"
	case EventSupersede:
		return "supersede"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// ErrIllegalTransition is returned for an event the current state does not accept.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateNew, EventInstall}:              StateInstalling,
	{StateInstalling, EventInstalled}:     StateWaiting,
	{StateInstalling, EventInstallFailed}: StateRedundant,
	{StateWaiting, EventActivate}:         StateActivating,
	{StateActivating, EventActivated}:     StateActive,
	{StateWaiting, EventSupersede}:        StateRedundant,
	{StateActive, EventSupersede}:         StateRedundant,
}

// Transition returns the state reached from "from" on event, or
// ErrIllegalTransition.
func Transition(from State, event Event) (State, error) {
	to, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, fmt.Errorf("%w: %s in state %s", ErrIllegalTransition, event, from)
	}
	return to, nil
}
