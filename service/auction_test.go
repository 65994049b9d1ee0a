package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"auctionhouse/model"
	"auctionhouse/ratelimit"
)

func testService(t *testing.T, store AuctionStore, now time.Time) *AuctionService {
	t.Helper()
	limiter := ratelimit.New(ratelimit.NewMemoryRecordStore(), ratelimit.WithClock(func() time.Time { return now }))
	return NewAuctionService(store, limiter, nil, Config{
		Policy: ExtensionPolicy{
			Window:        2 * time.Minute,
			Increment:     2 * time.Minute,
			MaxExtensions: 5,
		},
		BidRateLimit:  1000,
		BidRateWindow: time.Minute,
		Now:           func() time.Time { return now },
	})
}

func seedAuction(t *testing.T, store AuctionStore, a *model.Auction) {
	t.Helper()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	require.NoError(t, store.CreateAuction(context.Background(), a))
}

func baseAuction() *model.Auction {
	return &model.Auction{
		ID:           "a1",
		Status:       model.StatusActive,
		StartingBid:  "100",
		CurrentBid:   "100",
		BidIncrement: "10",
		StartTime:    1000,
		EndTime:      100000,
		CreatedBy:    "owner",
	}
}

func TestPlaceBid_Success(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	svc := testService(t, store, now)
	seedAuction(t, store, baseAuction())

	out, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, "100", string(out.Bid.Amount))
	require.True(t, out.Bid.IsWinning)
	require.False(t, out.Extended)
	require.Equal(t, int64(1), out.Auction.TotalBids)
	require.Equal(t, "u1", *out.Auction.HighestBidderID)

	acts, total, err := store.FindActivities(context.Background(), "a1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, model.ActivityBidPlaced, acts[0].Kind)
}

func TestPlaceBid_LazyActivation(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	svc := testService(t, store, now)
	a := baseAuction()
	a.Status = model.StatusDraft
	seedAuction(t, store, a)

	out, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, out.Auction.Status)

	stored, err := store.FindAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, stored.Status)
}

func TestPlaceBid_RejectionsDoNotMutate(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	svc := testService(t, store, now)
	seedAuction(t, store, baseAuction())

	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "owner", Amount: big.NewInt(500), ClientIP: "10.0.0.1",
	})
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonSelfBid, rej.Reason)

	stored, err := store.FindAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, int64(0), stored.TotalBids)
	require.Equal(t, int64(0), stored.Version)
}

func TestPlaceBid_UnknownAuction(t *testing.T) {
	store := NewMemoryStore()
	svc := testService(t, store, time.Unix(5000, 0))

	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "missing", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonNotFound, rej.Reason)
}

func TestPlaceBid_RateLimited(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	limiter := ratelimit.New(ratelimit.NewMemoryRecordStore(), ratelimit.WithClock(func() time.Time { return now }))
	svc := NewAuctionService(store, limiter, nil, Config{
		Policy:        ExtensionPolicy{Window: time.Minute, Increment: time.Minute, MaxExtensions: 1},
		BidRateLimit:  1,
		BidRateWindow: time.Minute,
		Now:           func() time.Time { return now },
	})
	seedAuction(t, store, baseAuction())

	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)

	out, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u2", Amount: big.NewInt(110), ClientIP: "10.0.0.1",
	})
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	require.False(t, out.RateLimit.Allowed)
	require.Greater(t, limited.RetryAfter, time.Duration(0))

	// Auction state untouched by the throttled request.
	stored, err := store.FindAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.TotalBids)
}

func TestPlaceBid_AntiSnipeExtension(t *testing.T) {
	store := NewMemoryStore()
	end := int64(100000)
	bidTime := end - 60 // one minute before the deadline
	now := time.Unix(bidTime, 0)
	svc := testService(t, store, now)
	seedAuction(t, store, baseAuction())

	out, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	require.True(t, out.Extended)
	require.Equal(t, bidTime+120, out.Auction.EndTime)
	require.Equal(t, int64(1), out.Auction.TimeExtensionsApplied)

	acts, _, err := store.FindActivities(context.Background(), "a1", 1, 10)
	require.NoError(t, err)
	kinds := make([]string, 0, len(acts))
	for _, act := range acts {
		kinds = append(kinds, act.Kind)
	}
	require.Contains(t, kinds, model.ActivityExtended)
}

// conflictOnceStore forces one commit conflict to exercise the single retry.
type conflictOnceStore struct {
	*MemoryStore
	mu       sync.Mutex
	injected bool
}

func (s *conflictOnceStore) Commit(ctx context.Context, c *BidCommit) error {
	s.mu.Lock()
	inject := !s.injected
	s.injected = true
	s.mu.Unlock()
	if inject {
		return ErrConflict
	}
	return s.MemoryStore.Commit(ctx, c)
}

func TestPlaceBid_RetriesOnceOnConflict(t *testing.T) {
	store := &conflictOnceStore{MemoryStore: NewMemoryStore()}
	now := time.Unix(5000, 0)
	svc := testService(t, store, now)
	seedAuction(t, store.MemoryStore, baseAuction())

	out, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), out.Auction.TotalBids)
}

// conflictAlwaysStore loses every race: the second failure must surface.
type conflictAlwaysStore struct {
	*MemoryStore
}

func (s *conflictAlwaysStore) Commit(ctx context.Context, c *BidCommit) error {
	return ErrConflict
}

func TestPlaceBid_SurfacesConflictAfterRetry(t *testing.T) {
	store := &conflictAlwaysStore{MemoryStore: NewMemoryStore()}
	svc := testService(t, store, time.Unix(5000, 0))
	seedAuction(t, store.MemoryStore, baseAuction())

	_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
		AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
	})
	require.ErrorIs(t, err, ErrConflict)
}

// Under concurrent submission no accepted bid may be lost or double counted,
// the current bid is monotonic and exactly one bid wins.
func TestPlaceBid_ConcurrentSubmissions(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	svc := testService(t, store, now)
	seedAuction(t, store, baseAuction())

	const bidders = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceBid(context.Background(), PlaceBidInput{
				AuctionID: "a1",
				BidderID:  fmt.Sprintf("u%d", i),
				Amount:    big.NewInt(int64(100 + 10*i)),
				ClientIP:  fmt.Sprintf("10.0.0.%d", i),
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			// Losing a race or landing below the moved minimum are the only
			// legitimate failures here.
			var rej *Rejection
			if !errors.Is(err, ErrConflict) && !errors.As(err, &rej) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	a, err := store.FindAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, int64(accepted), a.TotalBids)
	require.Equal(t, int64(accepted), a.Version)

	bids, err := store.FindBids(context.Background(), "a1")
	require.NoError(t, err)
	require.Len(t, bids, accepted)

	winning := 0
	max := new(big.Int)
	for _, b := range bids {
		if b.IsWinning {
			winning++
		}
		if b.Amount.Int().Cmp(max) > 0 {
			max = b.Amount.Int()
		}
	}
	require.Equal(t, 1, winning)
	require.Equal(t, max.Text(10), string(a.CurrentBid))
	require.GreaterOrEqual(t, accepted, 1)
}

func TestSettleAuction(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(200000, 0) // past the end time
	svc := testService(t, store, now)
	a := baseAuction()
	bidder := "u1"
	a.CurrentBid = "150"
	a.TotalBids = 3
	a.HighestBidderID = &bidder
	seedAuction(t, store, a)

	t.Run("stranger_forbidden", func(t *testing.T) {
		_, err := svc.SettleAuction(context.Background(), "a1", "intruder", "user")
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("owner_settles_ended_auction", func(t *testing.T) {
		settled, err := svc.SettleAuction(context.Background(), "a1", "owner", "user")
		require.NoError(t, err)
		require.NotNil(t, settled.SettledAt)
		require.Equal(t, model.StatusEnded, settled.Status)
	})

	t.Run("second_settlement_rejected", func(t *testing.T) {
		_, err := svc.SettleAuction(context.Background(), "a1", "owner", "user")
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestCancelAuction(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(5000, 0)
	svc := testService(t, store, now)

	t.Run("owner_cancels_bidless_auction", func(t *testing.T) {
		seedAuction(t, store, baseAuction())
		cancelled, err := svc.CancelAuction(context.Background(), "a1", "owner", "user")
		require.NoError(t, err)
		require.Equal(t, model.StatusCancelled, cancelled.Status)

		// Terminal: no bid is ever accepted again.
		_, err = svc.PlaceBid(context.Background(), PlaceBidInput{
			AuctionID: "a1", BidderID: "u1", Amount: big.NewInt(100), ClientIP: "10.0.0.1",
		})
		var rej *Rejection
		require.ErrorAs(t, err, &rej)
		require.Equal(t, ReasonNotActive, rej.Reason)
	})

	t.Run("auction_with_bids_not_cancellable", func(t *testing.T) {
		a := baseAuction()
		a.ID = "a2"
		bidder := "u1"
		a.TotalBids = 1
		a.HighestBidderID = &bidder
		seedAuction(t, store, a)
		_, err := svc.CancelAuction(context.Background(), "a2", "owner", "user")
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestGetAuction_LazyEnd(t *testing.T) {
	store := NewMemoryStore()
	now := time.Unix(200000, 0)
	svc := testService(t, store, now)
	seedAuction(t, store, baseAuction())

	detail, err := svc.GetAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, detail.Auction.Status)
	require.False(t, detail.Stale)

	stored, err := store.FindAuction(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, stored.Status)
}

func TestCreateAuction_Validation(t *testing.T) {
	store := NewMemoryStore()
	svc := testService(t, store, time.Unix(5000, 0))

	_, err := svc.CreateAuction(context.Background(), CreateAuctionInput{
		CreatedBy:    "owner",
		StartingBid:  big.NewInt(100),
		BidIncrement: big.NewInt(10),
		StartTime:    2000,
		EndTime:      1000, // ends before it starts
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	a, err := svc.CreateAuction(context.Background(), CreateAuctionInput{
		CreatedBy:    "owner",
		StartingBid:  big.NewInt(100),
		BidIncrement: big.NewInt(10),
		StartTime:    1000,
		EndTime:      2000,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusDraft, a.Status)
	require.Equal(t, "100", string(a.CurrentBid))
}
