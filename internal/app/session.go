package app

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vincent19951222/quiz-website/internal/domain"
)

// Event is pushed to the session subscriber (the transport layer).
type Event struct {
	Type      string          `json:"type"`
	Remaining int             `json:"remaining,omitempty"`
	Attempt   *domain.Attempt `json:"attempt,omitempty"`
}

const (
	EventTick      = "tick"
	EventSubmitted = "submitted"
)

// Session is one in-progress run through the question set. All mutation goes
// through the mutex; the countdown tick and a manual submit race on the
// submitted flag, and whichever grabs it first wins.
type Session struct {
	id        string
	identity  domain.Identity
	doc       domain.QuizDocument
	questions []domain.Question // presentation order
	env       domain.Environment
	startedAt time.Time
	now       func() time.Time

	mu        sync.Mutex
	answers   []int
	cursor    int
	remaining int // seconds until auto-submit
	submitted bool
	attempt   domain.Attempt

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

func newSession(id string, identity domain.Identity, doc domain.QuizDocument, questions []domain.Question, env domain.Environment, now func() time.Time) *Session {
	answers := make([]int, len(questions))
	for i := range answers {
		answers[i] = domain.Unanswered
	}
	return &Session{
		id:        id,
		identity:  identity,
		doc:       doc,
		questions: questions,
		env:       env,
		startedAt: now(),
		now:       now,
		answers:   answers,
		remaining: doc.TimeLimitMinutes * 60,
		events:    make(chan Event, 16),
		stop:      make(chan struct{}),
	}
}

func (s *Session) ID() string                  { return s.id }
func (s *Session) Identity() domain.Identity   { return s.identity }
func (s *Session) Document() domain.QuizDocument { return s.doc }

// Questions returns the shuffled presentation order.
func (s *Session) Questions() []domain.Question { return s.questions }

// Events delivers countdown ticks and the final submitted notification.
func (s *Session) Events() <-chan Event { return s.events }

// SelectAnswer records optionIndex for the question at questionIndex.
// Re-selection overwrites silently; a submitted session ignores the call.
func (s *Session) SelectAnswer(questionIndex, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return nil
	}
	if questionIndex < 0 || questionIndex >= len(s.questions) {
		return fmt.Errorf("question index %d out of range", questionIndex)
	}
	if optionIndex < 0 || optionIndex >= len(s.questions[questionIndex].Options) {
		return fmt.Errorf("option index %d out of range", optionIndex)
	}
	s.answers[questionIndex] = optionIndex
	return nil
}

// Navigate moves the cursor to any index in range; forward, backward and
// direct jumps are all allowed and never touch recorded answers.
func (s *Session) Navigate(targetIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if targetIndex < 0 || targetIndex >= len(s.questions) {
		return fmt.Errorf("target index %d out of range", targetIndex)
	}
	s.cursor = targetIndex
	return nil
}

// Cursor returns the current question position.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// AnsweredCount reports how many questions have an answer set.
func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.answers {
		if a != domain.Unanswered {
			count++
		}
	}
	return count
}

// tick decrements the countdown by one second and reports whether the time
// budget has elapsed. Ticks after submission are no-ops.
func (s *Session) tick() (remaining int, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return s.remaining, false
	}
	if s.remaining > 0 {
		s.remaining--
	}
	s.emitLocked(Event{Type: EventTick, Remaining: s.remaining})
	return s.remaining, s.remaining == 0
}

// complete scores the session and stamps completion exactly once. The second
// and later calls return the original attempt with first=false, which makes
// submit idempotent regardless of who triggered it.
func (s *Session) complete() (domain.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted {
		return s.attempt, false
	}
	s.submitted = true

	score := 0
	questionIDs := make([]int, len(s.questions))
	answers := make([]int, len(s.answers))
	copy(answers, s.answers)
	for i, q := range s.questions {
		questionIDs[i] = q.ID
		if s.answers[i] == q.CorrectOption {
			score++
		}
	}
	accuracy := 0
	if len(s.questions) > 0 {
		accuracy = int(math.Round(100 * float64(score) / float64(len(s.questions))))
	}

	completedAt := s.now()
	s.attempt = domain.Attempt{
		ID:          fmt.Sprintf("%s_%d", s.identity.Phone, completedAt.UnixMilli()),
		Identity:    s.identity,
		QuestionIDs: questionIDs,
		Answers:     answers,
		Score:       score,
		Accuracy:    accuracy,
		StartedAt:   s.startedAt,
		CompletedAt: completedAt,
	}
	attempt := s.attempt
	s.emitLocked(Event{Type: EventSubmitted, Attempt: &attempt})
	return s.attempt, true
}

// answerDetails resolves each presented question against the chosen option.
// Only valid after submission.
func (s *Session) answerDetails() []domain.AnswerDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	details := make([]domain.AnswerDetail, len(s.questions))
	for i, q := range s.questions {
		details[i] = domain.AnswerDetail{
			Question: q,
			Chosen:   s.answers[i],
			Correct:  s.answers[i] == q.CorrectOption,
		}
	}
	return details
}

func (s *Session) isSubmitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// stopTimer cancels the countdown goroutine; safe to call more than once.
func (s *Session) stopTimer() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Session) emitLocked(event Event) {
	select {
	case s.events <- event:
	default:
		// Drop the oldest buffered event rather than block the actor.
		select {
		case <-s.events:
		default:
		}
		s.events <- event
	}
}
