package core

import "errors"

var (
	// ErrInvalidSession is returned when the session key is unknown and
	// create-on-demand is disabled by policy.
	ErrInvalidSession = errors.New("unknown session")

	// ErrInvalidStep is returned when a step number falls outside the
	// configured valid range.
	ErrInvalidStep = errors.New("step number out of range")

	// ErrStepNotFound is returned by reads of a step that has never been
	// submitted for the session.
	ErrStepNotFound = errors.New("step not found")

	// ErrIncompleteSession is returned by summary assembly when the
	// mandatory detailed-assessment step is missing.  It clears once that
	// step is submitted.
	ErrIncompleteSession = errors.New("detailed assessment step missing")
)
