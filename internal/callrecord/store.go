package callrecord

import (
	"context"
	"errors"

	"github.com/eleven-am/voice-callcenter/internal/shared"
	"gorm.io/gorm"
)

const DefaultListLimit = 50

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&CallRecord{}, &TurnRecord{})
}

// Save writes the record and its turns in one transaction.
func (s *Store) Save(ctx context.Context, rec *CallRecord) error {
	if rec.ID == "" {
		rec.ID = shared.NewID("rec_")
	}
	for i := range rec.Turns {
		rec.Turns[i].CallRecordID = rec.ID
		if rec.Turns[i].ID == "" {
			rec.Turns[i].ID = shared.NewID("turn_")
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	})
}

// GetByCallID returns the most recent record for a call id.
func (s *Store) GetByCallID(ctx context.Context, callID string) (*CallRecord, error) {
	var rec CallRecord
	err := s.db.WithContext(ctx).
		Preload("Turns", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		Where("call_id = ?", callID).
		Order("started_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByCustomer returns a customer's calls, newest first, without turns.
func (s *Store) ListByCustomer(ctx context.Context, customerID int64, limit int) ([]*CallRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var recs []*CallRecord
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
