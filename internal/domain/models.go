package domain

import "time"

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID            int      `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

// QuizDocument is the static question set loaded once at startup.
type QuizDocument struct {
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	TimeLimitMinutes int        `json:"time_limit"`
	TotalQuestions   int        `json:"total_questions"`
	Questions        []Question `json:"questions"`
}

// Identity is the (name, phone) pair a participant answers under. The phone
// number is the gating key: once this person has viewed the answers they may
// never take the quiz again.
type Identity struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Unanswered marks a question the participant never answered.
const Unanswered = -1

// Attempt is one completed run through the question set.
//
// QuestionIDs records the presentation order so that Answers[i] can be
// resolved back to a concrete question after the fact. Accuracy is the
// rounded percentage of correct answers, 0 when the document was empty.
type Attempt struct {
	ID            string    `json:"id"`
	Identity      Identity  `json:"identity"`
	QuestionIDs   []int     `json:"question_ids"`
	Answers       []int     `json:"answers"`
	Score         int       `json:"score"`
	Accuracy      int       `json:"accuracy"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	AnswersViewed bool      `json:"answers_viewed"`
	Synced        bool      `json:"synced"`
}

// WrongCount is the number of presented questions not answered correctly,
// unanswered ones included.
func (a Attempt) WrongCount() int {
	return len(a.Answers) - a.Score
}

// TimeUsed is the real elapsed attempt duration.
func (a Attempt) TimeUsed() time.Duration {
	return a.CompletedAt.Sub(a.StartedAt)
}

// Environment is best-effort metadata about where an attempt was made,
// attached to remote records only.
type Environment struct {
	UserAgent string `json:"user_agent"`
	Origin    string `json:"origin"`
}

// AnswerDetail pairs a presented question with the participant's choice,
// produced when answers are revealed after submission.
type AnswerDetail struct {
	Question Question `json:"question"`
	Chosen   int      `json:"chosen"`
	Correct  bool     `json:"correct"`
}
