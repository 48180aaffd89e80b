package docstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Document is one record in the shared container. Conversations and messages
// live in the same table, told apart by Type and partitioned by UserID. The
// full document body is kept as JSON in Data; the columns exist only so
// predicates and sorts stay indexable.
type Document struct {
	ID             string `gorm:"primaryKey;size:64"`
	UserID         string `gorm:"size:64;not null;index:idx_docs_user_type,priority:1"`
	Type           string `gorm:"size:16;not null;index:idx_docs_user_type,priority:2"`
	ConversationID string `gorm:"size:64;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Data           []byte `gorm:"type:json"`
}

func (Document) TableName() string { return "documents" }

// Query describes a predicate over the container. UserID is mandatory so
// cross-partition reads cannot be expressed at all.
type Query struct {
	UserID         string
	Type           string
	ConversationID string
	OrderBy        string // "created_at" or "updated_at"
	Desc           bool
	Offset         int
	Limit          int // <= 0 means unbounded
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Document{})
}

// Ensure probes the container without mutating it.
func (s *Store) Ensure(ctx context.Context) (bool, string) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Document{}).Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Sprintf("document container not reachable: %v", err)
	}
	return true, "document container ready"
}

// Upsert inserts the document or replaces it in full when the id exists.
func (s *Store) Upsert(ctx context.Context, doc *Document) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(doc).Error
}

// Get is a point read within one partition. It returns nil when the id does
// not exist or belongs to another user.
func (s *Store) Get(ctx context.Context, userID, id string) (*Document, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (s *Store) Find(ctx context.Context, q Query) ([]Document, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.ConversationID != "" {
		tx = tx.Where("conversation_id = ?", q.ConversationID)
	}

	order := q.OrderBy
	if order == "" {
		order = "created_at"
	}
	if q.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}
	tx = tx.Order(order)

	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var docs []Document
	if err := tx.Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Delete removes one document. Deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, userID, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND id = ?", userID, id).
		Delete(&Document{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// DeleteWhere removes every document matching the predicate and reports how
// many rows went away.
func (s *Store) DeleteWhere(ctx context.Context, q Query) (int64, error) {
	tx := s.db.WithContext(ctx).Where("user_id = ?", q.UserID)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.ConversationID != "" {
		tx = tx.Where("conversation_id = ?", q.ConversationID)
	}
	res := tx.Delete(&Document{})
	return res.RowsAffected, res.Error
}
