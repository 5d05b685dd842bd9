package app

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vincent19951222/quiz-website/internal/domain"
)

// QuestionSource serves the immutable question document.
type QuestionSource interface {
	LoadDocument(ctx context.Context) (domain.QuizDocument, error)
}

// Results is the slice of the result store the attempt engine needs.
type Results interface {
	Append(ctx context.Context, attempt domain.Attempt) error
	MarkViewed(ctx context.Context, attemptID string, identity domain.Identity) error
	IsGated(ctx context.Context, identity domain.Identity) (bool, error)
	MarkSynced(ctx context.Context, attemptID string) error
}

// AttemptUploader pushes a completed attempt to the remote table service.
// Implementations must be best-effort: a false return is a logged, recoverable
// failure, and only genuine transport faults surface as an error.
type AttemptUploader interface {
	UploadAttempt(ctx context.Context, attempt domain.Attempt, env domain.Environment) (bool, error)
}

var phonePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// AttemptService contains the quiz-taking use cases: identity validation and
// gating, shuffled session creation, the countdown, idempotent submission,
// and the one-way "view answers" transition.
type AttemptService struct {
	questions QuestionSource
	results   Results
	uploader  AttemptUploader
	logger    *slog.Logger

	now  func() time.Time
	tick time.Duration
	rnd  *rand.Rand

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewAttemptService(questions QuestionSource, results Results, uploader AttemptUploader, logger *slog.Logger) *AttemptService {
	return NewAttemptServiceWithClock(questions, results, uploader, logger, time.Now, time.Second)
}

// NewAttemptServiceWithClock is test-only for deterministic timestamps and a
// fast countdown.
func NewAttemptServiceWithClock(questions QuestionSource, results Results, uploader AttemptUploader, logger *slog.Logger, now func() time.Time, tick time.Duration) *AttemptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptService{
		questions: questions,
		results:   results,
		uploader:  uploader,
		logger:    logger,
		now:       now,
		tick:      tick,
		rnd:       rand.New(rand.NewSource(now().UnixNano())),
		sessions:  make(map[string]*Session),
	}
}

// Start validates the identity, checks the gate, and opens a session over a
// uniformly-random permutation of the question set with the countdown running.
func (s *AttemptService) Start(ctx context.Context, identity domain.Identity, env domain.Environment) (*Session, error) {
	identity.Name = strings.TrimSpace(identity.Name)
	identity.Phone = strings.TrimSpace(identity.Phone)
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}

	gated, err := s.results.IsGated(ctx, identity)
	if err != nil {
		return nil, err
	}
	if gated {
		return nil, domain.ErrAlreadyCompleted
	}

	doc, err := s.questions.LoadDocument(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	questions := make([]domain.Question, len(doc.Questions))
	copy(questions, doc.Questions)
	s.rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	session := newSession(uuid.NewString(), identity, doc, questions, env, s.now)
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	go s.runCountdown(session)

	s.logger.Info("attempt started",
		"session", session.ID(),
		"name", identity.Name,
		"questions", len(questions),
	)
	return session, nil
}

// Get returns an active session by id.
func (s *AttemptService) Get(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Submit finalizes the session: scores it, appends the attempt to the result
// store, and fires the remote upload without blocking the caller. Submitting
// an already-submitted session returns the recorded attempt unchanged.
func (s *AttemptService) Submit(ctx context.Context, sessionID string) (domain.Attempt, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return domain.Attempt{}, domain.ErrSessionNotFound
	}
	return s.finish(ctx, session)
}

func (s *AttemptService) finish(ctx context.Context, session *Session) (domain.Attempt, error) {
	attempt, first := session.complete()
	if !first {
		return attempt, nil
	}
	session.stopTimer()

	if err := s.results.Append(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	s.logger.Info("attempt submitted",
		"attempt", attempt.ID,
		"score", attempt.Score,
		"accuracy", attempt.Accuracy,
	)

	if s.uploader != nil {
		// Fire-and-forget: remote sync must never block the result screen.
		go s.syncAttempt(attempt, session.env)
	}
	return attempt, nil
}

func (s *AttemptService) syncAttempt(attempt domain.Attempt, env domain.Environment) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ok, err := s.uploader.UploadAttempt(ctx, attempt, env)
	if err != nil {
		s.logger.Warn("remote sync transport fault", "attempt", attempt.ID, "err", err)
		return
	}
	if !ok {
		s.logger.Warn("remote sync rejected, record kept locally", "attempt", attempt.ID)
		return
	}
	if err := s.results.MarkSynced(ctx, attempt.ID); err != nil {
		s.logger.Warn("mark synced failed", "attempt", attempt.ID, "err", err)
		return
	}
	s.logger.Info("attempt synced to remote table", "attempt", attempt.ID)
}

// ViewAnswers reveals the per-question outcome for a submitted session and
// permanently gates the identity against retakes.
func (s *AttemptService) ViewAnswers(ctx context.Context, sessionID string) ([]domain.AnswerDetail, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if !session.isSubmitted() {
		return nil, domain.ErrAttemptNotFound
	}

	attempt, _ := session.complete()
	if err := s.results.MarkViewed(ctx, attempt.ID, session.Identity()); err != nil {
		return nil, err
	}
	s.logger.Info("answers viewed, identity gated", "attempt", attempt.ID)
	return session.answerDetails(), nil
}

// Abandon drops an unfinished session without recording anything.
func (s *AttemptService) Abandon(sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if ok {
		session.stopTimer()
	}
}

// runCountdown drives the 1-second tick until the budget elapses or the
// session is submitted or abandoned. Reaching zero submits exactly once;
// complete() absorbs any tick that lost the race to a manual submit.
func (s *AttemptService) runCountdown(session *Session) {
	if session.Document().TimeLimitMinutes <= 0 {
		return
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-session.stop:
			return
		case <-ticker.C:
			if _, expired := session.tick(); expired {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := s.finish(ctx, session); err != nil {
					s.logger.Error("auto submit failed", "session", session.ID(), "err", err)
				}
				cancel()
				return
			}
		}
	}
}

func validateIdentity(identity domain.Identity) error {
	if identity.Name == "" {
		return &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !phonePattern.MatchString(identity.Phone) {
		return &domain.ValidationError{Field: "phone", Reason: "must be a valid mobile number"}
	}
	return nil
}
