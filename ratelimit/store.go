package ratelimit

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"auctionhouse/model"
)

// GormRecordStore persists counters in MySQL. The increment is a single
// conditional upsert, so concurrent requests in the same fresh window can
// never both observe a zero count.
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

func (s *GormRecordStore) Increment(ctx context.Context, key string, windowStart, resetTime int64) (int64, error) {
	rec := model.RateLimitRecord{Key: key, Count: 1, WindowStart: windowStart, ResetTime: resetTime}
	// count must be assigned before window_start so the IF still sees the
	// stored window of the previous request.
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "count"}, Value: gorm.Expr("IF(window_start = VALUES(window_start), count + 1, 1)")},
			{Column: clause.Column{Name: "window_start"}, Value: gorm.Expr("VALUES(window_start)")},
			{Column: clause.Column{Name: "reset_time"}, Value: gorm.Expr("VALUES(reset_time)")},
		},
	}).Create(&rec).Error
	if err != nil {
		return 0, err
	}
	if err = s.db.WithContext(ctx).Where("`key` = ?", key).Take(&rec).Error; err != nil {
		return 0, err
	}
	return rec.Count, nil
}

func (s *GormRecordStore) DeleteExpired(ctx context.Context, before int64) (int64, error) {
	res := s.db.WithContext(ctx).Where("reset_time <= ?", before).Delete(&model.RateLimitRecord{})
	return res.RowsAffected, res.Error
}

// MemoryRecordStore is a concurrency-safe in-memory RecordStore, used in
// tests and single-node development mode.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]*model.RateLimitRecord
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]*model.RateLimitRecord)}
}

func (s *MemoryRecordStore) Increment(ctx context.Context, key string, windowStart, resetTime int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || rec.WindowStart != windowStart {
		rec = &model.RateLimitRecord{Key: key, Count: 0, WindowStart: windowStart}
		s.records[key] = rec
	}
	rec.Count++
	rec.ResetTime = resetTime
	return rec.Count, nil
}

func (s *MemoryRecordStore) DeleteExpired(ctx context.Context, before int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, rec := range s.records {
		if rec.ResetTime <= before {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}
