package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/vincent19951222/quiz-website/internal/domain"
)

// QuestionSource reads the question document from a JSON file on disk,
// shaped like the quiz_questions.json the web client ships with.
type QuestionSource struct {
	path string
}

func NewQuestionSource(path string) *QuestionSource {
	return &QuestionSource{path: path}
}

func (s *QuestionSource) LoadDocument(_ context.Context) (domain.QuizDocument, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.QuizDocument{}, fmt.Errorf("read question file: %w", err)
	}
	var doc domain.QuizDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return domain.QuizDocument{}, fmt.Errorf("decode question file: %w", err)
	}
	if len(doc.Questions) == 0 && doc.Title == "" {
		return domain.QuizDocument{}, domain.ErrQuestionsNotFound
	}
	return doc, nil
}
