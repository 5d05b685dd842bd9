package admin

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/vincent19951222/quiz-website/internal/bitable"
	"github.com/vincent19951222/quiz-website/internal/domain"
	"github.com/vincent19951222/quiz-website/internal/store"
)

// highScoreThreshold is the accuracy bar for the "excellent" rate.
const highScoreThreshold = 80

// TableSync is the slice of the remote client the admin view drives.
type TableSync interface {
	BatchUpload(ctx context.Context, records []bitable.Record) int
	TestConnection(ctx context.Context) bool
	Configured() bool
}

// Results is the result-store surface the admin view reads and resets.
type Results interface {
	List(ctx context.Context, filter store.Filter, order store.Sort) ([]domain.Attempt, error)
	Unsynced(ctx context.Context) ([]domain.Attempt, error)
	MarkSynced(ctx context.Context, attemptID string) error
	Clear(ctx context.Context) error
}

// Stats aggregates the stored attempts for the admin dashboard. Wrong counts
// and time used come from the per-question detail kept on each attempt, not
// from a fixed-total estimate.
type Stats struct {
	TotalAttempts   int     `json:"total_attempts"`
	AvgAccuracy     int     `json:"avg_accuracy"`
	HighScoreRate   int     `json:"high_score_rate"`
	ViewedCount     int     `json:"viewed_count"`
	AvgWrongCount   float64 `json:"avg_wrong_count"`
	AvgTimeUsedMins int     `json:"avg_time_used_minutes"`
}

// Service implements the administration view over the result store and the
// remote sync client.
type Service struct {
	results Results
	remote  TableSync
	logger  *slog.Logger
}

func NewService(results Results, remote TableSync, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{results: results, remote: remote, logger: logger}
}

// List proxies the result store's filtered, sorted listing.
func (s *Service) List(ctx context.Context, filter store.Filter, order store.Sort) ([]domain.Attempt, error) {
	return s.results.List(ctx, filter, order)
}

// ComputeStats aggregates a record listing.
func (s *Service) ComputeStats(attempts []domain.Attempt) Stats {
	stats := Stats{TotalAttempts: len(attempts)}
	if len(attempts) == 0 {
		return stats
	}

	accuracySum, wrongSum := 0, 0
	var timeUsedSum time.Duration
	highScores := 0
	for _, a := range attempts {
		accuracySum += a.Accuracy
		wrongSum += a.WrongCount()
		timeUsedSum += a.TimeUsed()
		if a.Accuracy >= highScoreThreshold {
			highScores++
		}
		if a.AnswersViewed {
			stats.ViewedCount++
		}
	}

	n := float64(len(attempts))
	stats.AvgAccuracy = int(math.Round(float64(accuracySum) / n))
	stats.HighScoreRate = int(math.Round(100 * float64(highScores) / n))
	stats.AvgWrongCount = math.Round(float64(wrongSum)/n*10) / 10
	stats.AvgTimeUsedMins = int(math.Round(timeUsedSum.Minutes() / n))
	return stats
}

// SyncAll pushes every unsynced attempt to the remote table. Records are
// marked synced only when the whole batch succeeded; a partial batch is
// retried in full on the next run.
func (s *Service) SyncAll(ctx context.Context) (synced, total int, err error) {
	pending, err := s.results.Unsynced(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	records := make([]bitable.Record, len(pending))
	for i, attempt := range pending {
		records[i] = bitable.BuildRecord(attempt, domain.Environment{UserAgent: "Admin Sync"})
	}

	count := s.remote.BatchUpload(ctx, records)
	if count == len(pending) {
		for _, attempt := range pending {
			if err := s.results.MarkSynced(ctx, attempt.ID); err != nil {
				s.logger.Warn("mark synced failed", "attempt", attempt.ID, "err", err)
			}
		}
	}
	s.logger.Info("batch sync finished", "synced", count, "total", len(pending))
	return count, len(pending), nil
}

// TestConnection probes remote credential validity and table read access.
func (s *Service) TestConnection(ctx context.Context) bool {
	return s.remote.TestConnection(ctx)
}

// Clear wipes every attempt and gate flag. Irreversible.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.results.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("result store cleared")
	return nil
}
