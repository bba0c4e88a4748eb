package ndn

import (
	"errors"
	"fmt"
)

type ErrInvalidValue struct {
	Item  string
	Value any
}

func (e ErrInvalidValue) Error() string {
	return fmt.Sprintf("invalid value for %s: %v", e.Item, e.Value)
}

type ErrNotSupported struct {
	Item string
}

func (e ErrNotSupported) Error() string {
	return fmt.Sprintf("not supported field: %s", e.Item)
}

var ErrCancelled = errors.New("operation cancelled")
var ErrNetwork = errors.New("network error")
var ErrProtocol = errors.New("protocol error")
var ErrSecurity = errors.New("security error")

// ErrFailedToEncode is returned when encoding fails on valid input.
var ErrFailedToEncode = errors.New("failed to encode an NDN packet")

// ErrWrongType is returned when a packet is not of the expected type.
var ErrWrongType = errors.New("packet to parse is not of desired type")

// ErrMultipleHandlers is returned when a second handler is attached to
// the same prefix.
var ErrMultipleHandlers = errors.New("multiple handlers attached to the same prefix")

// ErrDeadlineExceed is returned when the Interest deadline passed.
var ErrDeadlineExceed = errors.New("interest deadline exceeded")

// ErrFaceDown is returned when the face is closed.
var ErrFaceDown = errors.New("face is down. Unable to send packet")

// ErrNoPubKey is returned when the public key does not exist.
var ErrNoPubKey = errors.New("public key does not exist")

// ErrNotAvailable is surfaced when the producer declared the data
// unavailable or the retransmission budget ran out.
var ErrNotAvailable = errors.New("content is not available")

// ErrContentPoisoned is surfaced when verification kept failing past
// the exclusion budget.
var ErrContentPoisoned = errors.New("content failed verification beyond the exclusion budget")

// ErrInterestNotVerified is surfaced when the producer refused the
// Interest's signature.
var ErrInterestNotVerified = errors.New("interest was not verified by the producer")

// ErrRegistrationFailed is returned when prefix registration failed.
var ErrRegistrationFailed = errors.New("prefix registration failed")
