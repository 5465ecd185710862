package archive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/tug-of-war-backend/internal/engine"
)

// MatchResult is one finished game. Rows are only ever inserted.
type MatchResult struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RoomID     string    `gorm:"size:6;not null;index" json:"room_id"`
	Team1      string    `gorm:"size:100;not null" json:"team1"`
	Team2      string    `gorm:"size:100;not null" json:"team2"`
	Winner     string    `gorm:"size:100;not null" json:"winner"`
	Team1Score int       `gorm:"not null" json:"team1_score"`
	Team2Score int       `gorm:"not null" json:"team2_score"`
	RoomOpened time.Time `json:"room_opened"`
	FinishedAt time.Time `gorm:"index" json:"finished_at"`
}

func FromRoom(r engine.Room, finishedAt time.Time) MatchResult {
	return MatchResult{
		RoomID:     r.ID,
		Team1:      r.Team1,
		Team2:      r.Team2,
		Winner:     r.Winner,
		Team1Score: r.Team1Score,
		Team2Score: r.Team2Score,
		RoomOpened: r.CreatedAt,
		FinishedAt: finishedAt,
	}
}

type Recorder interface {
	Record(ctx context.Context, r MatchResult) error
}

type Nop struct{}

func (Nop) Record(context.Context, MatchResult) error { return nil }

type Store struct {
	db *gorm.DB
}

const (
	maxRetries    = 3
	retryInterval = 2 * time.Second
)

// Open connects to postgres and migrates the results table.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i <= maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err == nil {
			break
		}
		log.Warn("archive connect retry", zap.Int("retry", i), zap.Error(err))
		select {
		case <-time.After(retryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect archive: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&MatchResult{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db}, nil
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Record(ctx context.Context, r MatchResult) error {
	return s.db.WithContext(ctx).Create(&r).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Sink adapts a Recorder into a lobby finish hook. Writes run off the lobby
// goroutine; failures are logged and otherwise ignored.
func Sink(ctx context.Context, rec Recorder, log *zap.Logger, timeout time.Duration) func(engine.Room) {
	return func(room engine.Room) {
		result := FromRoom(room, time.Now())
		go func() {
			wctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := rec.Record(wctx, result); err != nil {
				log.Error("archive match result", zap.String("room_id", result.RoomID), zap.Error(err))
				return
			}
			log.Info("match archived", zap.String("room_id", result.RoomID), zap.String("winner", result.Winner))
		}()
	}
}
