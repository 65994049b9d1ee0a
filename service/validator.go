package service

import (
	"fmt"
	"math/big"
	"time"

	"auctionhouse/model"
)

// ValidationResult is the decision for a proposed bid. Exactly one reason is
// reported: the first failing check wins.
type ValidationResult struct {
	Accepted   bool
	Reason     RejectReason
	Message    string
	MinimumBid *big.Int
}

// Rejection converts a failed result into its error form.
func (r ValidationResult) Rejection() *Rejection {
	return &Rejection{Reason: r.Reason, Message: r.Message, MinimumBid: r.MinimumBid}
}

func rejected(reason RejectReason, format string, a ...interface{}) ValidationResult {
	return ValidationResult{Reason: reason, Message: fmt.Sprintf(format, a...)}
}

// MinimumAcceptableBid is the smallest amount the next bid may carry: the
// starting bid while no bids exist, otherwise currentBid + bidIncrement.
func MinimumAcceptableBid(a *model.Auction) *big.Int {
	if a.TotalBids == 0 {
		return a.StartingBid.Int()
	}
	return new(big.Int).Add(a.CurrentBid.Int(), a.BidIncrement.Int())
}

// ValidateBid decides whether a proposed bid is acceptable against the given
// auction state. It is pure: no I/O, no clock reads, no side effects, so the
// same inputs always produce the same result.
func ValidateBid(a *model.Auction, amount *big.Int, bidderID string, now time.Time) ValidationResult {
	if a == nil {
		return rejected(ReasonNotFound, "auction does not exist")
	}
	nowUnix := now.Unix()
	switch a.Status {
	case model.StatusActive:
		// proceed
	case model.StatusDraft:
		return rejected(ReasonNotStarted, "auction has not started")
	default:
		return rejected(ReasonNotActive, "auction is %s", a.Status)
	}
	if nowUnix < a.StartTime {
		return rejected(ReasonNotStarted, "auction starts at %d", a.StartTime)
	}
	if nowUnix >= a.EndTime {
		return rejected(ReasonEnded, "auction ended at %d", a.EndTime)
	}
	if bidderID == a.CreatedBy {
		return rejected(ReasonSelfBid, "owners cannot bid on their own auction")
	}
	if a.HighestBidderID != nil && bidderID == *a.HighestBidderID {
		return rejected(ReasonAlreadyHighest, "caller already holds the highest bid")
	}
	min := MinimumAcceptableBid(a)
	if amount == nil || amount.Cmp(min) < 0 {
		res := rejected(ReasonBelowMinimum, "minimum acceptable bid is %s", min.Text(10))
		res.MinimumBid = min
		return res
	}
	return ValidationResult{Accepted: true}
}
