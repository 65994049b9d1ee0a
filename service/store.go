package service

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"auctionhouse/model"
)

// BidCommit is the unit of work for an accepted bid: the updated auction
// state, the new bid row and the audit entries, all written in one
// transaction guarded by the expected version.
type BidCommit struct {
	Auction         *model.Auction // desired state; Version is written as ExpectedVersion+1
	ExpectedVersion int64
	Bid             *model.Bid
	Activities      []*model.AuctionActivity
}

// AuctionStore is the off-chain mirror of auction data. Commit and
// ApplyChainState are atomic; a partial write (bid saved but auction row not
// updated, or vice versa) must be impossible.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a *model.Auction) error
	FindAuction(ctx context.Context, id string) (*model.Auction, error)
	// LoadForUpdate reads the auction state a bid will be validated against,
	// including the concurrency token checked at commit time.
	LoadForUpdate(ctx context.Context, id string) (*model.Auction, error)
	// Commit applies an accepted bid. Returns ErrConflict when the auction
	// row changed since LoadForUpdate.
	Commit(ctx context.Context, c *BidCommit) error
	FindBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	FindActivities(ctx context.Context, auctionID string, page, size int) ([]model.AuctionActivity, int64, error)
	ListAuctions(ctx context.Context, page, size int) ([]model.Auction, int64, error)
	// UpdateStatus transitions the auction from one status to another,
	// appending the optional activity atomically. ErrConflict when the
	// stored status no longer matches from.
	UpdateStatus(ctx context.Context, id string, from, to model.AuctionStatus, act *model.AuctionActivity) error
	// MarkSettled records settlement of an ended auction exactly once.
	MarkSettled(ctx context.Context, id string, settledAt int64, act *model.AuctionActivity) error
	// ApplyChainState overwrites the mirrored fields of a chain-backed
	// auction and upserts its chain-derived bids keyed by transaction hash.
	ApplyChainState(ctx context.Context, a *model.Auction, bids []model.Bid) error
}

// GormStore is the MySQL implementation of AuctionStore.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormStore) FindAuction(ctx context.Context, id string) (*model.Auction, error) {
	var a model.Auction
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *GormStore) LoadForUpdate(ctx context.Context, id string) (*model.Auction, error) {
	// Optimistic concurrency: a plain read here, the version check happens
	// at commit time.
	return s.FindAuction(ctx, id)
}

func (s *GormStore) Commit(ctx context.Context, c *BidCommit) error {
	return s.db.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		res := t.Model(&model.Auction{}).
			Where("id = ? AND version = ?", c.Auction.ID, c.ExpectedVersion).
			Updates(map[string]interface{}{
				"status":                  c.Auction.Status,
				"current_bid":             c.Auction.CurrentBid,
				"highest_bidder_id":       c.Auction.HighestBidderID,
				"total_bids":              c.Auction.TotalBids,
				"end_time":                c.Auction.EndTime,
				"time_extensions_applied": c.Auction.TimeExtensionsApplied,
				"version":                 c.ExpectedVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if err := t.Model(&model.Bid{}).
			Where("auction_id = ? AND is_winning = ?", c.Auction.ID, true).
			Update("is_winning", false).Error; err != nil {
			return err
		}
		if err := t.Create(c.Bid).Error; err != nil {
			return err
		}
		for _, act := range c.Activities {
			if err := t.Create(act).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormStore) FindBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	var bids []model.Bid
	err := s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("placed_at ASC").
		Find(&bids).Error
	return bids, err
}

func (s *GormStore) FindActivities(ctx context.Context, auctionID string, page, size int) (acts []model.AuctionActivity, total int64, err error) {
	err = s.db.WithContext(ctx).Model(&model.AuctionActivity{}).
		Where("auction_id = ?", auctionID).Count(&total).Error
	if err != nil {
		return
	}
	err = s.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("timestamp DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&acts).Error
	return
}

func (s *GormStore) ListAuctions(ctx context.Context, page, size int) (auctions []model.Auction, total int64, err error) {
	err = s.db.WithContext(ctx).Model(&model.Auction{}).Count(&total).Error
	if err != nil {
		return
	}
	err = s.db.WithContext(ctx).
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&auctions).Error
	return
}

func (s *GormStore) UpdateStatus(ctx context.Context, id string, from, to model.AuctionStatus, act *model.AuctionActivity) error {
	return s.db.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		res := t.Model(&model.Auction{}).
			Where("id = ? AND status = ?", id, from).
			Updates(map[string]interface{}{"status": to, "version": gorm.Expr("version + 1")})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if act != nil {
			return t.Create(act).Error
		}
		return nil
	})
}

func (s *GormStore) MarkSettled(ctx context.Context, id string, settledAt int64, act *model.AuctionActivity) error {
	return s.db.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		res := t.Model(&model.Auction{}).
			Where("id = ? AND status = ? AND settled_at IS NULL", id, model.StatusEnded).
			Updates(map[string]interface{}{"settled_at": settledAt, "version": gorm.Expr("version + 1")})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if act != nil {
			return t.Create(act).Error
		}
		return nil
	})
}

func (s *GormStore) ApplyChainState(ctx context.Context, a *model.Auction, bids []model.Bid) error {
	return s.db.WithContext(ctx).Transaction(func(t *gorm.DB) error {
		res := t.Model(&model.Auction{}).
			Where("id = ?", a.ID).
			Updates(map[string]interface{}{
				"status":                  a.Status,
				"chain_status":            a.ChainStatus,
				"starting_bid":            a.StartingBid,
				"current_bid":             a.CurrentBid,
				"bid_increment":           a.BidIncrement,
				"highest_bidder_id":       a.HighestBidderID,
				"total_bids":              a.TotalBids,
				"start_time":              a.StartTime,
				"end_time":                a.EndTime,
				"time_extensions_applied": a.TimeExtensionsApplied,
				"settled_at":              a.SettledAt,
				"version":                 gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		// Chain truth supersedes any provisional winning flag recorded at
		// bid-acceptance time.
		if err := t.Model(&model.Bid{}).
			Where("auction_id = ? AND is_winning = ?", a.ID, true).
			Update("is_winning", false).Error; err != nil {
			return err
		}
		for i := range bids {
			// Keyed by transaction hash: reconciling the same chain state
			// twice must not duplicate bids.
			if err := t.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "transaction_hash"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"bidder_id", "amount", "placed_at", "is_winning",
				}),
			}).Create(&bids[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
