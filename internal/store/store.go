// Package store persists completed turns, outcome analytics, extracted
// memory facts, and claim audit records behind gorm. It backs the
// postcall package's HistoryWriter/AnalyticsSink/MemoryExtractor/
// ClaimLogger interfaces with a single SQLite-backed implementation.
package store

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/agentflow-router/postcall"
)

// Turn is one completed request/response pair, as written by HistoryWriter.
type Turn struct {
	ID               uint   `gorm:"primaryKey"`
	RequestID        string `gorm:"index"`
	UserID           string `gorm:"index"`
	SessionID        string `gorm:"index"`
	Prompt           string
	Response         string
	Vendor           string
	Model            string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	CreatedAt        time.Time
}

// OutcomeEvent is one row per post-call analytics observation.
type OutcomeEvent struct {
	ID        uint   `gorm:"primaryKey"`
	RequestID string `gorm:"index"`
	Vendor    string
	Model     string
	Errored   bool
	CreatedAt time.Time
}

// MemoryFact is a durable fact extracted from a completed, error-free turn.
type MemoryFact struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	RequestID string
	Fact      string
	CreatedAt time.Time
}

// Claim is a factual assertion the response made, logged for later audit.
type Claim struct {
	ID        uint   `gorm:"primaryKey"`
	RequestID string `gorm:"index"`
	Text      string
	CreatedAt time.Time
}

// Store is the gorm-backed implementation of every postcall sink.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to a SQLite database at path and migrates its schema.
// path may be ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Turn{}, &OutcomeEvent{}, &MemoryFact{}, &Claim{}); err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// WriteTurn implements postcall.HistoryWriter.
func (s *Store) WriteTurn(ctx context.Context, d postcall.Data) error {
	return s.db.WithContext(ctx).Create(&Turn{
		RequestID: d.RequestID, UserID: d.UserID, SessionID: d.SessionID,
		Prompt: d.Prompt, Response: d.Response, Vendor: d.Vendor, Model: d.Model,
		PromptTokens: d.PromptTokens, CompletionTokens: d.CompletionTokens, Cost: d.Cost,
	}).Error
}

// RecordOutcome implements postcall.AnalyticsSink.
func (s *Store) RecordOutcome(ctx context.Context, d postcall.Data) error {
	return s.db.WithContext(ctx).Create(&OutcomeEvent{
		RequestID: d.RequestID, Vendor: d.Vendor, Model: d.Model, Errored: d.Err != nil,
	}).Error
}

// Extract implements postcall.MemoryExtractor. It is called only on a
// successful terminal outcome (postcall.BuildSteps gates this), and keeps
// extraction deliberately shallow: the response text itself is stored as
// the fact, with no dedicated summarization call.
func (s *Store) Extract(ctx context.Context, d postcall.Data) error {
	if d.UserID == "" || d.UserID == "anon" {
		return nil
	}
	return s.db.WithContext(ctx).Create(&MemoryFact{
		UserID: d.UserID, RequestID: d.RequestID, Fact: d.Response,
	}).Error
}

// LogClaims implements postcall.ClaimLogger.
func (s *Store) LogClaims(ctx context.Context, d postcall.Data) error {
	return s.db.WithContext(ctx).Create(&Claim{
		RequestID: d.RequestID, Text: d.Response,
	}).Error
}
