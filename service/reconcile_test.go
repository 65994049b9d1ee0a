package service

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"auctionhouse/model"
)

// fakeChainReader serves canned contract state and can be switched to fail.
type fakeChainReader struct {
	auction *ChainAuction
	bids    []ChainBid
	err     error
	calls   int
}

func (f *fakeChainReader) AuctionAt(ctx context.Context, index uint64) (*ChainAuction, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.auction, nil
}

func (f *fakeChainReader) AuctionBids(ctx context.Context, index uint64) ([]ChainBid, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]ChainBid(nil), f.bids...), nil
}

func chainBackedAuction(store AuctionStore, t *testing.T) *model.Auction {
	t.Helper()
	idx := uint64(7)
	a := &model.Auction{
		ID:           "c1",
		Status:       model.StatusActive,
		ChainIndex:   &idx,
		StartingBid:  "100",
		CurrentBid:   "100",
		BidIncrement: "10",
		StartTime:    1000,
		EndTime:      100000,
		CreatedBy:    "owner",
	}
	require.NoError(t, store.CreateAuction(context.Background(), a))
	return a
}

func TestReconcile_ChainOverwritesMirror(t *testing.T) {
	store := NewMemoryStore()
	a := chainBackedAuction(store, t)

	// Drift the mirror so the overwrite is observable.
	drifted := "drifted"
	a.CurrentBid = "999999"
	a.HighestBidderID = &drifted
	a.TotalBids = 42

	reader := &fakeChainReader{
		auction: &ChainAuction{
			Index:         7,
			Seller:        "0xseller",
			StartingBid:   big.NewInt(100),
			MinIncrement:  big.NewInt(10),
			HighestBid:    big.NewInt(130),
			HighestBidder: "0xbob",
			StartTime:     1000,
			EndTime:       120000,
			Extensions:    1,
			State:         ChainStateOpen,
		},
		bids: []ChainBid{
			{TxHash: "0xaa", Bidder: "0xalice", Amount: big.NewInt(110), Time: 2000},
			{TxHash: "0xbb", Bidder: "0xbob", Amount: big.NewInt(130), Time: 3000},
		},
	}

	res, err := NewReconciler(reader, store).Reconcile(context.Background(), a)
	require.NoError(t, err)
	require.False(t, res.Stale)
	require.Equal(t, "130", string(res.Auction.CurrentBid))
	require.Equal(t, "0xbob", *res.Auction.HighestBidderID)
	require.Equal(t, int64(2), res.Auction.TotalBids)
	require.Equal(t, int64(120000), res.Auction.EndTime)
	require.Equal(t, int64(1), res.Auction.TimeExtensionsApplied)
	require.Equal(t, model.ChainOpen, *res.Auction.ChainStatus)

	require.Len(t, res.Bids, 2)
	require.False(t, res.Bids[0].IsWinning)
	require.True(t, res.Bids[1].IsWinning)
	require.Equal(t, "0xbob", res.Bids[1].BidderID)

	// The overwrite also landed in the persisted mirror.
	stored, err := store.FindAuction(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "130", string(stored.CurrentBid))
}

func TestReconcile_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	a := chainBackedAuction(store, t)

	reader := &fakeChainReader{
		auction: &ChainAuction{
			Index:         7,
			Seller:        "0xseller",
			StartingBid:   big.NewInt(100),
			MinIncrement:  big.NewInt(10),
			HighestBid:    big.NewInt(110),
			HighestBidder: "0xalice",
			StartTime:     1000,
			EndTime:       100000,
			State:         ChainStateOpen,
		},
		bids: []ChainBid{
			{TxHash: "0xaa", Bidder: "0xalice", Amount: big.NewInt(110), Time: 2000},
		},
	}
	r := NewReconciler(reader, store)

	_, err := r.Reconcile(context.Background(), a)
	require.NoError(t, err)
	_, err = r.Reconcile(context.Background(), a)
	require.NoError(t, err)

	// The transaction hash keys the row: two runs, one bid.
	bids, err := store.FindBids(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, "0xaa", *bids[0].TransactionHash)
	require.True(t, bids[0].IsWinning)
}

func TestReconcile_StaleOnRPCFailure(t *testing.T) {
	store := NewMemoryStore()
	a := chainBackedAuction(store, t)

	reader := &fakeChainReader{err: errors.New("connection refused")}
	res, err := NewReconciler(reader, store).Reconcile(context.Background(), a)
	require.NoError(t, err)
	require.True(t, res.Stale)
	require.Equal(t, "100", string(res.Auction.CurrentBid))
	require.Empty(t, res.Bids)
}

func TestReconcile_TerminalStatusNeverReverts(t *testing.T) {
	store := NewMemoryStore()
	a := chainBackedAuction(store, t)
	a.Status = model.StatusCancelled

	reader := &fakeChainReader{
		auction: &ChainAuction{
			Index:        7,
			Seller:       "0xseller",
			StartingBid:  big.NewInt(100),
			MinIncrement: big.NewInt(10),
			HighestBid:   big.NewInt(0),
			StartTime:    1000,
			EndTime:      100000,
			State:        ChainStateOpen,
		},
	}
	res, err := NewReconciler(reader, store).Reconcile(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, res.Auction.Status)
	require.Equal(t, model.ChainOpen, *res.Auction.ChainStatus)
}

func TestReconcile_ClosedChainStateEndsAuction(t *testing.T) {
	store := NewMemoryStore()
	a := chainBackedAuction(store, t)

	reader := &fakeChainReader{
		auction: &ChainAuction{
			Index:         7,
			Seller:        "0xseller",
			StartingBid:   big.NewInt(100),
			MinIncrement:  big.NewInt(10),
			HighestBid:    big.NewInt(150),
			HighestBidder: "0xcarol",
			StartTime:     1000,
			EndTime:       50000,
			State:         ChainStateClosed,
		},
		bids: []ChainBid{
			{TxHash: "0xcc", Bidder: "0xcarol", Amount: big.NewInt(150), Time: 4000},
		},
	}
	res, err := NewReconciler(reader, store).Reconcile(context.Background(), a)
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, res.Auction.Status)
	require.Equal(t, model.ChainClosed, *res.Auction.ChainStatus)
}

func TestReconcile_NonChainBackedPassthrough(t *testing.T) {
	store := NewMemoryStore()
	a := &model.Auction{
		ID: "plain", Status: model.StatusActive,
		StartingBid: "100", CurrentBid: "100", BidIncrement: "10",
		StartTime: 1000, EndTime: 100000, CreatedBy: "owner",
	}
	require.NoError(t, store.CreateAuction(context.Background(), a))

	reader := &fakeChainReader{err: errors.New("must not be called")}
	res, err := NewReconciler(reader, store).Reconcile(context.Background(), a)
	require.NoError(t, err)
	require.False(t, res.Stale)
	require.Zero(t, reader.calls)
}
