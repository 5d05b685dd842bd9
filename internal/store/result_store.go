package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vincent19951222/quiz-website/internal/domain"
)

const (
	attemptsKey  = "quiz:attempts"
	viewedPrefix = "quiz:viewed:"
)

// SortField selects the ordering key for List.
type SortField string

const (
	SortByCompletedAt SortField = "completed"
	SortByAccuracy    SortField = "accuracy"
	SortByName        SortField = "name"
)

// Filter narrows List results by substring match on name or phone.
type Filter struct {
	Query string
}

// Sort orders List results. Equal keys retain their prior relative order.
type Sort struct {
	Field SortField
	Desc  bool
}

// ResultStore is the append-only record of completed attempts plus the
// per-identity "answers viewed" gate, persisted through a KV port.
//
// The full attempt collection lives under one key; each gated identity gets
// its own flag key so the gate survives a corrupted or cleared collection.
type ResultStore struct {
	kv KV
	mu sync.Mutex
}

func NewResultStore(kv KV) *ResultStore {
	return &ResultStore{kv: kv}
}

// Append adds an attempt to the collection and persists it.
func (s *ResultStore) Append(ctx context.Context, attempt domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts, err := s.load(ctx)
	if err != nil {
		return err
	}
	attempts = append(attempts, attempt)
	return s.save(ctx, attempts)
}

// MarkViewed sets answers_viewed on the matching attempt and gates the
// identity permanently. There is no way back short of Clear.
func (s *ResultStore) MarkViewed(ctx context.Context, attemptID string, identity domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts, err := s.load(ctx)
	if err != nil {
		return err
	}
	found := false
	for i := range attempts {
		if attempts[i].ID == attemptID {
			attempts[i].AnswersViewed = true
			found = true
			break
		}
	}
	if !found {
		return domain.ErrAttemptNotFound
	}
	if err := s.save(ctx, attempts); err != nil {
		return err
	}
	return s.kv.Set(ctx, viewedPrefix+identity.Phone, "true")
}

// IsGated reports whether the identity has ever viewed answers.
func (s *ResultStore) IsGated(ctx context.Context, identity domain.Identity) (bool, error) {
	value, ok, err := s.kv.Get(ctx, viewedPrefix+identity.Phone)
	if err != nil {
		return false, err
	}
	return ok && value == "true", nil
}

// MarkSynced flags an attempt as uploaded to the remote table.
func (s *ResultStore) MarkSynced(ctx context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts, err := s.load(ctx)
	if err != nil {
		return err
	}
	for i := range attempts {
		if attempts[i].ID == attemptID {
			attempts[i].Synced = true
			return s.save(ctx, attempts)
		}
	}
	return domain.ErrAttemptNotFound
}

// List returns attempts matching the filter in the requested order.
func (s *ResultStore) List(ctx context.Context, filter Filter, order Sort) ([]domain.Attempt, error) {
	s.mu.Lock()
	attempts, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if q := filter.Query; q != "" {
		lower := strings.ToLower(q)
		filtered := attempts[:0:0]
		for _, a := range attempts {
			if strings.Contains(strings.ToLower(a.Identity.Name), lower) ||
				strings.Contains(a.Identity.Phone, q) {
				filtered = append(filtered, a)
			}
		}
		attempts = filtered
	}

	less := lessFunc(order.Field, attempts)
	if less != nil {
		sort.SliceStable(attempts, func(i, j int) bool {
			if order.Desc {
				return less(j, i)
			}
			return less(i, j)
		})
	}
	return attempts, nil
}

// Unsynced returns attempts not yet uploaded, oldest first.
func (s *ResultStore) Unsynced(ctx context.Context) ([]domain.Attempt, error) {
	s.mu.Lock()
	attempts, err := s.load(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	pending := attempts[:0:0]
	for _, a := range attempts {
		if !a.Synced {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

// Clear drops every attempt and every gate flag. Irreversible.
func (s *ResultStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Remove(ctx, attemptsKey); err != nil {
		return err
	}
	keys, err := s.kv.Keys(ctx, viewedPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.kv.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *ResultStore) load(ctx context.Context) ([]domain.Attempt, error) {
	raw, ok, err := s.kv.Get(ctx, attemptsKey)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var attempts []domain.Attempt
	if err := json.Unmarshal([]byte(raw), &attempts); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	return attempts, nil
}

func (s *ResultStore) save(ctx context.Context, attempts []domain.Attempt) error {
	data, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	return s.kv.Set(ctx, attemptsKey, string(data))
}

func lessFunc(field SortField, attempts []domain.Attempt) func(i, j int) bool {
	switch field {
	case SortByCompletedAt:
		return func(i, j int) bool { return attempts[i].CompletedAt.Before(attempts[j].CompletedAt) }
	case SortByAccuracy:
		return func(i, j int) bool { return attempts[i].Accuracy < attempts[j].Accuracy }
	case SortByName:
		return func(i, j int) bool { return attempts[i].Identity.Name < attempts[j].Identity.Name }
	default:
		return nil
	}
}
