package session

import "errors"

// Precondition violations. Domain outcomes (a wrong answer, a missed target)
// are never reported through these.
var (
	ErrAlreadyActive    = errors.New("session: already active")
	ErrNoChallenges     = errors.New("session: no challenges available")
	ErrNotActive        = errors.New("session: not active")
	ErrUnknownChallenge = errors.New("session: unknown challenge")
	ErrAlreadyResolved  = errors.New("session: challenge already resolved")
	ErrInvalidTiers     = errors.New("session: invalid tolerance tiers")
	ErrInvalidChoice    = errors.New("session: invalid choice")
)
