package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"auctionhouse/common/types"
	"auctionhouse/log"
	"auctionhouse/model"
	"auctionhouse/ratelimit"
)

// Config carries the injected deployment parameters of the engine.
type Config struct {
	Policy        ExtensionPolicy
	BidRateLimit  int64         // max bid requests per client per window
	BidRateWindow time.Duration // rate limit window
	Now           func() time.Time
}

// AuctionService composes the rate limiter, validator, extension policy,
// state store and reconciler behind the bid placement, read and settlement
// operations consumed by the API layer.
type AuctionService struct {
	store      AuctionStore
	limiter    *ratelimit.Limiter
	reconciler *Reconciler
	cfg        Config
}

func NewAuctionService(store AuctionStore, limiter *ratelimit.Limiter, reconciler *Reconciler, cfg Config) *AuctionService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuctionService{store: store, limiter: limiter, reconciler: reconciler, cfg: cfg}
}

// PlaceBidInput: BidderID comes from the authenticated session and ClientIP
// from the transport, never from the request body.
type PlaceBidInput struct {
	AuctionID string
	BidderID  string
	Amount    *big.Int
	ClientIP  string
}

// PlaceBidOutput carries the persisted bid, the updated auction summary,
// whether a time extension was applied, and the rate-limit decision for the
// response headers. RateLimit is populated on every outcome.
type PlaceBidOutput struct {
	Bid       *model.Bid
	Auction   *model.Auction
	Extended  bool
	RateLimit ratelimit.Result
}

// PlaceBid accepts or rejects one bid. On an optimistic-concurrency conflict
// the state is reloaded, revalidated and committed once more; a second lost
// race surfaces ErrConflict rather than masking the outcome.
func (s *AuctionService) PlaceBid(ctx context.Context, in PlaceBidInput) (*PlaceBidOutput, error) {
	out := &PlaceBidOutput{}
	out.RateLimit = s.limiter.CheckLimit(ctx, "bid:"+in.ClientIP, s.cfg.BidRateLimit, s.cfg.BidRateWindow)
	if !out.RateLimit.Allowed {
		return out, &RateLimitedError{out.RateLimit}
	}

	for attempt := 0; ; attempt++ {
		bidErr, err := s.tryPlaceBid(ctx, in, out)
		if err == nil && bidErr == nil {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if errors.Is(bidErr, ErrConflict) && attempt == 0 {
			log.Debugf("bid commit conflict on auction %s, retrying once", in.AuctionID)
			continue
		}
		return out, bidErr
	}
}

// tryPlaceBid returns (bidErr, infraErr): bidErr is a business outcome
// (rejection or conflict), infraErr aborts without retry.
func (s *AuctionService) tryPlaceBid(ctx context.Context, in PlaceBidInput, out *PlaceBidOutput) (error, error) {
	now := s.cfg.Now()
	a, err := s.store.LoadForUpdate(ctx, in.AuctionID)
	if errors.Is(err, ErrNotFound) {
		return &Rejection{Reason: ReasonNotFound, Message: "auction does not exist"}, nil
	}
	if err != nil {
		return nil, &TransientError{Op: "load auction", Err: err}
	}

	// An auction in draft becomes active lazily once its start time passes.
	if a.Status == model.StatusDraft && now.Unix() >= a.StartTime && now.Unix() < a.EndTime {
		a.Status = model.StatusActive
	}

	res := ValidateBid(a, in.Amount, in.BidderID, now)
	if !res.Accepted {
		return res.Rejection(), nil
	}

	newEnd, extended := s.cfg.Policy.Apply(a, now)
	expected := a.Version

	bidder := in.BidderID
	a.CurrentBid = types.FromBig(in.Amount)
	a.HighestBidderID = &bidder
	a.TotalBids++
	if extended {
		a.EndTime = newEnd
		a.TimeExtensionsApplied++
	}

	bid := &model.Bid{
		ID:        uuid.NewString(),
		AuctionID: a.ID,
		BidderID:  in.BidderID,
		Amount:    types.FromBig(in.Amount),
		PlacedAt:  now.Unix(),
		IsWinning: true,
	}
	activities := []*model.AuctionActivity{{
		ID:        uuid.NewString(),
		AuctionID: a.ID,
		Kind:      model.ActivityBidPlaced,
		Detail:    fmt.Sprintf("bid %s by %s", bid.Amount, in.BidderID),
		Timestamp: now.Unix(),
	}}
	if extended {
		activities = append(activities, &model.AuctionActivity{
			ID:        uuid.NewString(),
			AuctionID: a.ID,
			Kind:      model.ActivityExtended,
			Detail:    fmt.Sprintf("end time extended to %d (%d/%d)", a.EndTime, a.TimeExtensionsApplied, s.cfg.Policy.MaxExtensions),
			Timestamp: now.Unix(),
		})
	}

	if err := a.CheckInvariants(); err != nil {
		return nil, &InvariantError{AuctionID: a.ID, Detail: err.Error()}
	}

	err = s.store.Commit(ctx, &BidCommit{
		Auction:         a,
		ExpectedVersion: expected,
		Bid:             bid,
		Activities:      activities,
	})
	if errors.Is(err, ErrConflict) {
		return ErrConflict, nil
	}
	if err != nil {
		return nil, &TransientError{Op: "commit bid", Err: err}
	}

	a.Version = expected + 1
	out.Bid = bid
	out.Auction = a
	out.Extended = extended
	return nil, nil
}

// AuctionDetail is the read model for one auction. Stale is set when a
// chain-backed auction could not be reconciled and the last-known-good
// mirror is served.
type AuctionDetail struct {
	Auction *model.Auction
	Bids    []model.Bid
	Stale   bool
}

// GetAuction returns the auction with its bid history. Chain-backed auctions
// are reconciled against the contract on every read.
func (s *AuctionService) GetAuction(ctx context.Context, id string) (*AuctionDetail, error) {
	a, err := s.store.FindAuction(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "load auction", Err: err}
	}

	if a.ChainBacked() && s.reconciler != nil {
		res, err := s.reconciler.Reconcile(ctx, a)
		if err != nil {
			return nil, err
		}
		return &AuctionDetail{Auction: res.Auction, Bids: res.Bids, Stale: res.Stale}, nil
	}

	s.endIfDue(ctx, a)
	bids, err := s.store.FindBids(ctx, id)
	if err != nil {
		return nil, &TransientError{Op: "load bids", Err: err}
	}
	return &AuctionDetail{Auction: a, Bids: bids}, nil
}

// endIfDue transitions an active auction past its deadline to ended. Losing
// the race to another request is fine, the state is terminal either way.
func (s *AuctionService) endIfDue(ctx context.Context, a *model.Auction) {
	if a.Status != model.StatusActive || s.cfg.Now().Unix() < a.EndTime {
		return
	}
	err := s.store.UpdateStatus(ctx, a.ID, model.StatusActive, model.StatusEnded, nil)
	if err != nil && !errors.Is(err, ErrConflict) {
		log.Warnf("lazy end of auction %s failed: %v", a.ID, err)
		return
	}
	a.Status = model.StatusEnded
	a.Version++
}

// CreateAuctionInput carries owner-supplied auction parameters. Amounts are
// integer minor units.
type CreateAuctionInput struct {
	CreatedBy    string
	StartingBid  *big.Int
	BidIncrement *big.Int
	StartTime    int64
	EndTime      int64
	ChainIndex   *uint64
}

// CreateAuction registers a new draft auction.
func (s *AuctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*model.Auction, error) {
	if in.CreatedBy == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrInvalidInput)
	}
	if in.StartingBid == nil || in.StartingBid.Sign() < 0 || in.BidIncrement == nil || in.BidIncrement.Sign() <= 0 {
		return nil, fmt.Errorf("%w: starting bid and increment must be positive minor units", ErrInvalidInput)
	}
	a := &model.Auction{
		ID:           uuid.NewString(),
		Status:       model.StatusDraft,
		ChainIndex:   in.ChainIndex,
		StartingBid:  types.FromBig(in.StartingBid),
		CurrentBid:   types.FromBig(in.StartingBid),
		BidIncrement: types.FromBig(in.BidIncrement),
		StartTime:    in.StartTime,
		EndTime:      in.EndTime,
		CreatedBy:    in.CreatedBy,
	}
	if err := a.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.store.CreateAuction(ctx, a); err != nil {
		return nil, &TransientError{Op: "create auction", Err: err}
	}
	return a, nil
}

// SettleAuction records completion of funds/ownership transfer for an ended
// auction, by the owner or an admin. Terminal states never revert.
func (s *AuctionService) SettleAuction(ctx context.Context, id, callerID, role string) (*model.Auction, error) {
	a, err := s.store.FindAuction(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "load auction", Err: err}
	}
	if callerID != a.CreatedBy && role != "admin" {
		return nil, ErrForbidden
	}
	s.endIfDue(ctx, a)
	if a.Status != model.StatusEnded || a.SettledAt != nil {
		return nil, fmt.Errorf("%w: auction is %s and cannot be settled", ErrInvalidInput, a.Status)
	}
	now := s.cfg.Now().Unix()
	act := &model.AuctionActivity{
		ID:        uuid.NewString(),
		AuctionID: a.ID,
		Kind:      model.ActivitySettled,
		Detail:    fmt.Sprintf("settled by %s", callerID),
		Timestamp: now,
	}
	if err := s.store.MarkSettled(ctx, id, now, act); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, &TransientError{Op: "settle auction", Err: err}
	}
	a.SettledAt = &now
	a.Version++
	return a, nil
}

// CancelAuction withdraws an auction that has not received bids yet.
func (s *AuctionService) CancelAuction(ctx context.Context, id, callerID, role string) (*model.Auction, error) {
	a, err := s.store.FindAuction(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "load auction", Err: err}
	}
	if callerID != a.CreatedBy && role != "admin" {
		return nil, ErrForbidden
	}
	if a.Terminal() || a.TotalBids > 0 {
		return nil, fmt.Errorf("%w: only auctions without bids can be cancelled", ErrInvalidInput)
	}
	act := &model.AuctionActivity{
		ID:        uuid.NewString(),
		AuctionID: a.ID,
		Kind:      model.ActivityCancelled,
		Detail:    fmt.Sprintf("cancelled by %s", callerID),
		Timestamp: s.cfg.Now().Unix(),
	}
	if err := s.store.UpdateStatus(ctx, id, a.Status, model.StatusCancelled, act); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		return nil, &TransientError{Op: "cancel auction", Err: err}
	}
	a.Status = model.StatusCancelled
	a.Version++
	return a, nil
}

// ListAuctions returns one page of auctions, newest first.
func (s *AuctionService) ListAuctions(ctx context.Context, page, size int) ([]model.Auction, int64, error) {
	auctions, total, err := s.store.ListAuctions(ctx, page, size)
	if err != nil {
		return nil, 0, &TransientError{Op: "list auctions", Err: err}
	}
	return auctions, total, nil
}

// Activities returns one page of the append-only audit history.
func (s *AuctionService) Activities(ctx context.Context, auctionID string, page, size int) ([]model.AuctionActivity, int64, error) {
	acts, total, err := s.store.FindActivities(ctx, auctionID, page, size)
	if err != nil {
		return nil, 0, &TransientError{Op: "list activities", Err: err}
	}
	return acts, total, nil
}

// chainBidID derives a stable bid id from the transaction hash so repeated
// reconciliation produces identical rows.
func chainBidID(txHash string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(txHash)).String()
}
