package service

import (
	"context"
	"math/big"
	"sort"

	"auctionhouse/common/types"
	"auctionhouse/log"
	"auctionhouse/model"
)

// Contract-side auction states.
const (
	ChainStateOpen uint8 = iota
	ChainStateClosed
	ChainStatePaid
)

// ChainAuction is the auction struct read from the contract. Amounts are in
// the chain's native minor unit; no display conversion happens here.
type ChainAuction struct {
	Index         uint64
	Seller        string
	StartingBid   *big.Int
	MinIncrement  *big.Int
	HighestBid    *big.Int
	HighestBidder string // empty when no bid yet
	StartTime     uint64
	EndTime       uint64 // includes contract-side anti-snipe extensions
	Extensions    uint64
	State         uint8
}

// ChainBid is one BidPlaced event. TxHash is the idempotency key for the
// mirrored bid row.
type ChainBid struct {
	TxHash string
	Bidder string
	Amount *big.Int
	Time   uint64
}

// ChainReader provides read-only contract calls with bounded retry. The node
// package implements it over JSON-RPC.
type ChainReader interface {
	AuctionAt(ctx context.Context, index uint64) (*ChainAuction, error)
	AuctionBids(ctx context.Context, index uint64) ([]ChainBid, error)
}

// ReconcileResult is the reconciled view. Stale is set when the chain was
// unreachable and the last-known-good mirror is served instead.
type ReconcileResult struct {
	Auction *model.Auction
	Bids    []model.Bid
	Stale   bool
}

// Reconciler pulls authoritative state from the auction contract and
// overwrites the off-chain mirror. The mirror is a cache for chain-backed
// auctions, never an independent writer of the mirrored fields.
type Reconciler struct {
	reader ChainReader
	store  AuctionStore
}

func NewReconciler(reader ChainReader, store AuctionStore) *Reconciler {
	return &Reconciler{reader: reader, store: store}
}

// Reconcile refreshes the mirror of a chain-backed auction. A transient RPC
// failure leaves the mirror at its last-known-good state and returns it with
// Stale set; the mirror is never nulled out. No auction-row lock is held
// while waiting on the RPC endpoint.
func (r *Reconciler) Reconcile(ctx context.Context, a *model.Auction) (*ReconcileResult, error) {
	if !a.ChainBacked() {
		bids, err := r.store.FindBids(ctx, a.ID)
		if err != nil {
			return nil, &TransientError{Op: "load bids", Err: err}
		}
		return &ReconcileResult{Auction: a, Bids: bids}, nil
	}

	ca, err := r.reader.AuctionAt(ctx, *a.ChainIndex)
	if err != nil {
		return r.lastKnownGood(ctx, a, &TransientError{Op: "chain auction read", Err: err})
	}
	chainBids, err := r.reader.AuctionBids(ctx, *a.ChainIndex)
	if err != nil {
		return r.lastKnownGood(ctx, a, &TransientError{Op: "chain bid history read", Err: err})
	}

	merged := mirrorAuction(a, ca)
	bids := mirrorBids(merged, ca, chainBids)
	if err := r.store.ApplyChainState(ctx, merged, bids); err != nil {
		// The fetched view is still fresh and safe to serve; only the
		// persisted mirror lags behind.
		log.Errorf("reconcile: persisting chain state for auction %s failed: %v", a.ID, err)
	}
	return &ReconcileResult{Auction: merged, Bids: bids}, nil
}

func (r *Reconciler) lastKnownGood(ctx context.Context, a *model.Auction, cause error) (*ReconcileResult, error) {
	log.Warnf("reconcile: serving stale mirror for auction %s: %v", a.ID, cause)
	bids, err := r.store.FindBids(ctx, a.ID)
	if err != nil {
		return nil, &TransientError{Op: "load bids", Err: err}
	}
	return &ReconcileResult{Auction: a, Bids: bids, Stale: true}, nil
}

// mirrorAuction overwrites the mirrored fields with the contract's view.
// Overwrite, not merge: the chain wins every conflict.
func mirrorAuction(a *model.Auction, ca *ChainAuction) *model.Auction {
	m := *a
	m.StartingBid = types.FromBig(ca.StartingBid)
	m.BidIncrement = types.FromBig(ca.MinIncrement)
	m.StartTime = int64(ca.StartTime)
	m.EndTime = int64(ca.EndTime)
	m.TimeExtensionsApplied = int64(ca.Extensions)
	if ca.HighestBidder != "" {
		bidder := ca.HighestBidder
		m.HighestBidderID = &bidder
		m.CurrentBid = types.FromBig(ca.HighestBid)
	} else {
		m.HighestBidderID = nil
		m.CurrentBid = m.StartingBid
	}

	switch ca.State {
	case ChainStateClosed:
		status := model.ChainClosed
		m.ChainStatus = &status
		m.Status = model.StatusEnded
	case ChainStatePaid:
		status := model.ChainPaid
		m.ChainStatus = &status
		m.Status = model.StatusEnded
	default:
		status := model.ChainOpen
		m.ChainStatus = &status
		// A terminal off-chain status never reverts to active.
		if !a.Terminal() {
			m.Status = model.StatusActive
		}
	}
	return &m
}

// mirrorBids converts the event history into mirror rows, totally ordered by
// amount with ties broken by time, and recomputes the single winning bid.
func mirrorBids(a *model.Auction, ca *ChainAuction, chainBids []ChainBid) []model.Bid {
	sort.SliceStable(chainBids, func(i, j int) bool {
		if c := chainBids[i].Amount.Cmp(chainBids[j].Amount); c != 0 {
			return c < 0
		}
		return chainBids[i].Time < chainBids[j].Time
	})
	a.TotalBids = int64(len(chainBids))

	bids := make([]model.Bid, 0, len(chainBids))
	winner := -1
	for i, cb := range chainBids {
		hash := cb.TxHash
		bids = append(bids, model.Bid{
			ID:              chainBidID(cb.TxHash),
			AuctionID:       a.ID,
			BidderID:        cb.Bidder,
			Amount:          types.FromBig(cb.Amount),
			PlacedAt:        int64(cb.Time),
			TransactionHash: &hash,
		})
		if ca.HighestBidder != "" && cb.Bidder == ca.HighestBidder && cb.Amount.Cmp(ca.HighestBid) == 0 {
			winner = i
		}
	}
	if winner >= 0 {
		bids[winner].IsWinning = true
	}
	return bids
}
