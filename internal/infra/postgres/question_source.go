package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/vincent19951222/quiz-website/internal/domain"
)

// QuestionSource loads the question document JSONB from Postgres.
type QuestionSource struct {
	pool       *pgxpool.Pool
	documentID string
}

func NewQuestionSource(pool *pgxpool.Pool, documentID string) *QuestionSource {
	return &QuestionSource{pool: pool, documentID: documentID}
}

func (s *QuestionSource) LoadDocument(ctx context.Context) (domain.QuizDocument, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_documents WHERE id=$1`, s.documentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizDocument{}, domain.ErrQuestionsNotFound
	}
	if err != nil {
		return domain.QuizDocument{}, fmt.Errorf("load question document: %w", err)
	}
	var doc domain.QuizDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return domain.QuizDocument{}, fmt.Errorf("unmarshal question document: %w", err)
	}
	return doc, nil
}
