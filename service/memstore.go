package service

import (
	"context"
	"sort"
	"sync"

	"auctionhouse/model"
)

// MemoryStore is a concurrency-safe in-memory AuctionStore with the same
// commit semantics as GormStore, used in tests and single-node development.
type MemoryStore struct {
	mu         sync.Mutex
	auctions   map[string]*model.Auction
	bids       map[string][]model.Bid
	activities map[string][]model.AuctionActivity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		auctions:   make(map[string]*model.Auction),
		bids:       make(map[string][]model.Bid),
		activities: make(map[string][]model.AuctionActivity),
	}
}

func copyAuction(a *model.Auction) *model.Auction {
	c := *a
	if a.HighestBidderID != nil {
		v := *a.HighestBidderID
		c.HighestBidderID = &v
	}
	if a.ChainIndex != nil {
		v := *a.ChainIndex
		c.ChainIndex = &v
	}
	if a.ChainStatus != nil {
		v := *a.ChainStatus
		c.ChainStatus = &v
	}
	if a.SettledAt != nil {
		v := *a.SettledAt
		c.SettledAt = &v
	}
	return &c
}

func (s *MemoryStore) CreateAuction(ctx context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = copyAuction(a)
	return nil
}

func (s *MemoryStore) FindAuction(ctx context.Context, id string) (*model.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAuction(a), nil
}

func (s *MemoryStore) LoadForUpdate(ctx context.Context, id string) (*model.Auction, error) {
	return s.FindAuction(ctx, id)
}

func (s *MemoryStore) Commit(ctx context.Context, c *BidCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[c.Auction.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != c.ExpectedVersion {
		return ErrConflict
	}
	next := copyAuction(c.Auction)
	next.Version = c.ExpectedVersion + 1
	s.auctions[next.ID] = next
	bids := s.bids[next.ID]
	for i := range bids {
		bids[i].IsWinning = false
	}
	s.bids[next.ID] = append(bids, *c.Bid)
	for _, act := range c.Activities {
		s.activities[next.ID] = append(s.activities[next.ID], *act)
	}
	return nil
}

func (s *MemoryStore) FindBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bids := append([]model.Bid(nil), s.bids[auctionID]...)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].PlacedAt < bids[j].PlacedAt })
	return bids, nil
}

func (s *MemoryStore) FindActivities(ctx context.Context, auctionID string, page, size int) ([]model.AuctionActivity, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.activities[auctionID]
	total := int64(len(all))
	start := (page - 1) * size
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return append([]model.AuctionActivity(nil), all[start:end]...), total, nil
}

func (s *MemoryStore) ListAuctions(ctx context.Context, page, size int) ([]model.Auction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]model.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		all = append(all, *copyAuction(a))
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	total := int64(len(all))
	start := (page - 1) * size
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to model.AuctionStatus, act *model.AuctionActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != from {
		return ErrConflict
	}
	a.Status = to
	a.Version++
	if act != nil {
		s.activities[id] = append(s.activities[id], *act)
	}
	return nil
}

func (s *MemoryStore) MarkSettled(ctx context.Context, id string, settledAt int64, act *model.AuctionActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return ErrNotFound
	}
	if a.Status != model.StatusEnded || a.SettledAt != nil {
		return ErrConflict
	}
	a.SettledAt = &settledAt
	a.Version++
	if act != nil {
		s.activities[id] = append(s.activities[id], *act)
	}
	return nil
}

func (s *MemoryStore) ApplyChainState(ctx context.Context, a *model.Auction, bids []model.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.auctions[a.ID]
	if !ok {
		return ErrNotFound
	}
	next := copyAuction(a)
	next.Version = cur.Version + 1
	s.auctions[a.ID] = next

	existing := s.bids[a.ID]
	for i := range existing {
		existing[i].IsWinning = false
	}
	for _, b := range bids {
		replaced := false
		for i := range existing {
			if existing[i].TransactionHash != nil && b.TransactionHash != nil &&
				*existing[i].TransactionHash == *b.TransactionHash {
				b.ID = existing[i].ID
				existing[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, b)
		}
	}
	s.bids[a.ID] = existing
	return nil
}
