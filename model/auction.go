package model

import (
	"fmt"

	"auctionhouse/common/types"
)

// AuctionStatus is the off-chain lifecycle state of an auction.
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "draft"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
)

// ChainStatus mirrors the on-chain auction state for chain-backed auctions.
type ChainStatus string

const (
	ChainOpen   ChainStatus = "open"
	ChainClosed ChainStatus = "closed"
	ChainPaid   ChainStatus = "paid"
)

type Auction struct {
	ID          string        `json:"id" gorm:"type:CHAR(36);primaryKey"`
	Status      AuctionStatus `json:"status" gorm:"type:VARCHAR(16);index"`
	ChainIndex  *uint64       `json:"chainIndex,omitempty" gorm:"uniqueIndex"` // nil for off-chain auctions
	ChainStatus *ChainStatus  `json:"chainStatus,omitempty" gorm:"type:VARCHAR(16)"`

	StartingBid  types.BigInt `json:"startingBid" gorm:"type:VARCHAR(128)"`
	CurrentBid   types.BigInt `json:"currentBid" gorm:"type:VARCHAR(128)"`
	BidIncrement types.BigInt `json:"bidIncrement" gorm:"type:VARCHAR(128)"`

	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime" gorm:"index"`

	HighestBidderID       *string `json:"highestBidder,omitempty" gorm:"type:VARCHAR(64)"`
	TotalBids             int64   `json:"totalBids"`
	TimeExtensionsApplied int64   `json:"timeExtensionsApplied"`

	CreatedBy string `json:"createdBy" gorm:"type:VARCHAR(64);index"`
	SettledAt *int64 `json:"settledAt,omitempty"`

	// Version is the optimistic concurrency token checked on every bid commit.
	Version   int64 `json:"-"`
	CreatedAt int64 `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt int64 `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Terminal reports whether the auction can never return to the active state.
func (a *Auction) Terminal() bool {
	if a.Status == StatusEnded || a.Status == StatusCancelled {
		return true
	}
	return a.ChainStatus != nil && (*a.ChainStatus == ChainClosed || *a.ChainStatus == ChainPaid)
}

// ChainBacked reports whether the authoritative state lives in the contract.
func (a *Auction) ChainBacked() bool {
	return a.ChainIndex != nil
}

// CheckInvariants verifies the structural invariants of a committed auction
// row. A violation is a programmer error, never corrected silently.
func (a *Auction) CheckInvariants() error {
	if a.EndTime <= a.StartTime {
		return fmt.Errorf("auction %s: endTime %d <= startTime %d", a.ID, a.EndTime, a.StartTime)
	}
	if a.CurrentBid.Cmp(a.StartingBid) < 0 {
		return fmt.Errorf("auction %s: currentBid %s < startingBid %s", a.ID, a.CurrentBid, a.StartingBid)
	}
	if (a.HighestBidderID != nil) != (a.TotalBids > 0) {
		return fmt.Errorf("auction %s: highestBidder set=%v with totalBids=%d", a.ID, a.HighestBidderID != nil, a.TotalBids)
	}
	if a.TotalBids < 0 || a.TimeExtensionsApplied < 0 {
		return fmt.Errorf("auction %s: negative counters", a.ID)
	}
	return nil
}

type Bid struct {
	ID        string       `json:"id" gorm:"type:CHAR(36);primaryKey"`
	AuctionID string       `json:"auctionId" gorm:"type:CHAR(36);index"`
	BidderID  string       `json:"bidderId" gorm:"type:VARCHAR(64);index"`
	Amount    types.BigInt `json:"amount" gorm:"type:VARCHAR(128)"`
	PlacedAt  int64        `json:"placedAt" gorm:"index"`
	// TransactionHash is nil until the bid is chain-confirmed; it is the
	// idempotency key for bids derived from chain events.
	TransactionHash *string `json:"transactionHash,omitempty" gorm:"type:CHAR(66);uniqueIndex"`
	IsWinning       bool    `json:"isWinning"`
}

// Activity kinds, append-only audit trail.
const (
	ActivityBidPlaced  = "bid_placed"
	ActivityExtended   = "auction_extended"
	ActivitySettled    = "auction_settled"
	ActivityCancelled  = "auction_cancelled"
	ActivityReconciled = "auction_reconciled"
)

// AuctionActivity is an append-only log entry, never mutated.
type AuctionActivity struct {
	ID        string `json:"id" gorm:"type:CHAR(36);primaryKey"`
	AuctionID string `json:"auctionId" gorm:"type:CHAR(36);index"`
	Kind      string `json:"kind" gorm:"type:VARCHAR(32)"`
	Detail    string `json:"detail" gorm:"type:VARCHAR(256)"`
	Timestamp int64  `json:"timestamp"`
}

// RateLimitRecord is a persisted fixed-window request counter.
type RateLimitRecord struct {
	Key         string `gorm:"type:VARCHAR(128);uniqueIndex"`
	Count       int64
	WindowStart int64 // unix milliseconds
	ResetTime   int64 `gorm:"index"` // unix milliseconds
}
