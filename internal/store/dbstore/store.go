package dbstore

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/tts-platform/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Artifact struct {
	Key       string `gorm:"primaryKey;size:191"`
	Data      []byte `gorm:"type:longblob"`
	Size      int
	CreatedAt time.Time
}

func (Artifact) TableName() string { return "tts_artifacts" }

// Store keeps artifacts in the job database, the zero-dependency default.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Artifact{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	a := Artifact{Key: key, Data: data, Size: len(data)}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "size"}),
	}).Create(&a).Error
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var a Artifact
	if err := s.db.WithContext(ctx).First(&a, "`key` = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return a.Data, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("`key` = ?", key).Delete(&Artifact{}).Error
}
