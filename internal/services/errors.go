package services

import (
	"errors"
	"fmt"
)

// Error kinds let callers decide retry-vs-skip explicitly instead of
// relying on log side channels. Match with errors.Is.
var (
	// ErrExternalService covers embedding and labeling call failures.
	// Never fatal to a batch: the item is skipped or a fallback is used.
	ErrExternalService = errors.New("external service failure")

	// ErrDataInsufficiency marks profile text too short or placeholder.
	// The profile is excluded from clustering and matching, silently.
	ErrDataInsufficiency = errors.New("insufficient profile data")

	// ErrEmptyResult marks a read that found nothing in the current
	// clustering generation, such as a cluster ID with no memberships.
	// A valid terminal state, not a failure.
	ErrEmptyResult = errors.New("empty result")

	// ErrPrecondition marks a request that cannot be served at all, such
	// as a similarity query from a user with no profile embedding.
	ErrPrecondition = errors.New("precondition failed")
)

func externalErr(service string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrExternalService, service, err)
}
