package cacheproxy

import "errors"

var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// State of a proxy instance. Transitions only ever go forward.
type State int32

const (
	Parsed State = iota
	Installing
	Installed
	Activating
	Activated
	Redundant
)

func (s State) String() string {
	switch s {
	case Parsed:
		return "parsed"
	case Installing:
		return "installing"
	case Installed:
		return "installed"
	case Activating:
		return "activating"
	case Activated:
		return "activated"
	case Redundant:
		return "redundant"
	default:
		return "unknown"
	}
}
