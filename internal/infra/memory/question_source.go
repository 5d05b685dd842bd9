package memory

import (
	"context"
	"sync"

	"github.com/vincent19951222/quiz-website/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches the question document from a backing store.
type QuestionLoader interface {
	LoadDocument(ctx context.Context) (domain.QuizDocument, error)
}

// StaticQuestionSource serves a fixed in-memory document (tests/demos).
type StaticQuestionSource struct {
	doc domain.QuizDocument
}

func NewStaticQuestionSource(doc domain.QuizDocument) *StaticQuestionSource {
	return &StaticQuestionSource{doc: doc}
}

func (s *StaticQuestionSource) LoadDocument(_ context.Context) (domain.QuizDocument, error) {
	return s.doc, nil
}

// CachedQuestionSource loads the document once per process and serves the
// cached copy afterwards; the document is immutable for the session.
type CachedQuestionSource struct {
	loader QuestionLoader
	sf     singleflight.Group

	mu     sync.RWMutex
	doc    domain.QuizDocument
	loaded bool
}

func NewCachedQuestionSource(loader QuestionLoader) *CachedQuestionSource {
	return &CachedQuestionSource{loader: loader}
}

func (s *CachedQuestionSource) LoadDocument(ctx context.Context) (domain.QuizDocument, error) {
	s.mu.RLock()
	if s.loaded {
		doc := s.doc
		s.mu.RUnlock()
		return doc, nil
	}
	s.mu.RUnlock()

	result, err, _ := s.sf.Do("document", func() (interface{}, error) {
		s.mu.RLock()
		if s.loaded {
			doc := s.doc
			s.mu.RUnlock()
			return doc, nil
		}
		s.mu.RUnlock()

		doc, err := s.loader.LoadDocument(ctx)
		if err != nil {
			return domain.QuizDocument{}, err
		}

		s.mu.Lock()
		s.doc = doc
		s.loaded = true
		s.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return domain.QuizDocument{}, err
	}
	return result.(domain.QuizDocument), nil
}
