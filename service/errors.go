package service

import (
	"errors"
	"fmt"
	"math/big"

	"auctionhouse/ratelimit"
)

// RejectReason identifies why a bid was refused. Rejections are expected
// business outcomes carried as structured data, never parsed from prose.
type RejectReason string

const (
	ReasonNotFound       RejectReason = "NotFound"
	ReasonNotStarted     RejectReason = "NotStarted"
	ReasonNotActive      RejectReason = "NotActive"
	ReasonEnded          RejectReason = "Ended"
	ReasonSelfBid        RejectReason = "SelfBid"
	ReasonAlreadyHighest RejectReason = "AlreadyHighestBidder"
	ReasonBelowMinimum   RejectReason = "BelowMinimum"
)

// Rejection is a client error: the bid failed validation and must not be
// retried automatically. MinimumBid is set for BelowMinimum so the caller
// can retry with the exact acceptable amount.
type Rejection struct {
	Reason     RejectReason
	Message    string
	MinimumBid *big.Int
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("bid rejected (%s): %s", r.Reason, r.Message)
}

var (
	// ErrConflict is surfaced after a concurrent-write race was lost and a
	// single internal retry also lost.
	ErrConflict = errors.New("auction: concurrent modification conflict")
	// ErrNotFound is the store-level missing-row sentinel.
	ErrNotFound = errors.New("auction: not found")
	// ErrForbidden rejects callers without the required role or ownership.
	ErrForbidden = errors.New("auction: caller not permitted")
	// ErrInvalidInput rejects malformed auction parameters.
	ErrInvalidInput = errors.New("auction: invalid input")
)

// RateLimitedError carries the limiter decision so the transport layer can
// emit Retry-After and the X-RateLimit-* headers.
type RateLimitedError struct {
	ratelimit.Result
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// TransientError wraps persistence or chain-RPC unavailability. Callers may
// retry with backoff; the outcome of the wrapped operation is unknown.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// InvariantError reports committed state that failed an invariant check.
// Programmer error: loud, never silently corrected.
type InvariantError struct {
	AuctionID string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation on auction %s: %s", e.AuctionID, e.Detail)
}
