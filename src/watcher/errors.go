package watcher

import (
	"errors"
	"fmt"
)

var (
	// Second watcher started in the same process
	ErrAlreadyRunning = errors.New("watcher is already running")

	// Checkpoint isn't where this instance expected it, or the lease is gone
	ErrCheckpointMoved = errors.New("checkpoint moved or lease lost")

	// Checkpoint would go back
	ErrCheckpointRegression = errors.New("checkpoint can't decrease")

	// Blocks returned by the chain don't match the requested range
	ErrBlockRange = errors.New("unexpected block range")

	// Operation payload can't be turned into an action. Operation is skipped.
	ErrMalformedPayload = errors.New("malformed payload")

	ErrMissingTrxId      = fmt.Errorf("%w: missing transaction id", ErrMalformedPayload)
	ErrAmbiguousAuthor   = fmt.Errorf("%w: expected exactly one posting authority", ErrMalformedPayload)
	ErrInvalidAuthor     = fmt.Errorf("%w: invalid author", ErrMalformedPayload)
	ErrPayloadTooLarge   = fmt.Errorf("%w: payload too large", ErrMalformedPayload)
	ErrTooManyFields     = fmt.Errorf("%w: too many fields", ErrMalformedPayload)
	ErrUnknownActionType = fmt.Errorf("%w: unknown type", ErrMalformedPayload)
	ErrMissingField      = fmt.Errorf("%w: missing field", ErrMalformedPayload)
	ErrInvalidField      = fmt.Errorf("%w: invalid field", ErrMalformedPayload)
	ErrLimitExceeded     = fmt.Errorf("%w: limit exceeded", ErrMalformedPayload)
)
