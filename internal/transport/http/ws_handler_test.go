package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vincent19951222/quiz-website/internal/app"
	"github.com/vincent19951222/quiz-website/internal/domain"
	"github.com/vincent19951222/quiz-website/internal/infra/memory"
	"github.com/vincent19951222/quiz-website/internal/store"
)

func sampleDocument() domain.QuizDocument {
	return domain.QuizDocument{
		Title:            "sample",
		TimeLimitMinutes: 10,
		TotalQuestions:   2,
		Questions: []domain.Question{
			{ID: 1, Text: "q1", Options: []string{"a", "b"}, CorrectOption: 0, Explanation: "e1"},
			{ID: 2, Text: "q2", Options: []string{"a", "b"}, CorrectOption: 1, Explanation: "e2"},
		},
	}
}

func newWSServer(t *testing.T) (*httptest.Server, *store.ResultStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
	results := store.NewResultStore(memory.NewKV())
	service := app.NewAttemptService(
		memory.NewStaticQuestionSource(sampleDocument()),
		results,
		nil,
		logger,
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(service, logger).ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, results
}

func dialWS(t *testing.T, server *httptest.Server, name, phone string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?name=" + name + "&phone=" + phone
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}

// readUntil skips countdown ticks until the wanted envelope arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) json.RawMessage {
	t.Helper()
	for i := 0; i < 50; i++ {
		typ, payload := readNext(conn, t)
		if typ == want {
			return payload
		}
		if typ != "tick" {
			t.Fatalf("expected %s or tick, got %s", want, typ)
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}

func TestWebSocketSessionEnvelope(t *testing.T) {
	server, _ := newWSServer(t)
	conn := dialWS(t, server, "Alice", "13812345678")

	payload := readUntil(conn, t, "session")
	var session struct {
		SessionID string `json:"sessionId"`
		Title     string `json:"title"`
		Questions []map[string]any `json:"questions"`
	}
	if err := json.Unmarshal(payload, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.SessionID == "" || session.Title != "sample" {
		t.Fatalf("unexpected session payload: %+v", session)
	}
	if len(session.Questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(session.Questions))
	}
	for _, q := range session.Questions {
		if _, leaked := q["correct_answer"]; leaked {
			t.Fatal("correct answer leaked before submission")
		}
		if _, leaked := q["explanation"]; leaked {
			t.Fatal("explanation leaked before submission")
		}
	}
}

func TestWebSocketAnswerAndSubmitFlow(t *testing.T) {
	server, results := newWSServer(t)
	conn := dialWS(t, server, "Alice", "13812345678")

	sessionRaw := readUntil(conn, t, "session")
	var session struct {
		Questions []struct {
			ID int `json:"id"`
		} `json:"questions"`
	}
	if err := json.Unmarshal(sessionRaw, &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}

	// answer every presented question with its known correct option
	for i, q := range session.Questions {
		correct := 0
		if q.ID == 2 {
			correct = 1
		}
		answer := map[string]any{
			"type":    "answer",
			"payload": map[string]any{"questionIndex": i, "optionIndex": correct},
		}
		if err := conn.WriteJSON(answer); err != nil {
			t.Fatalf("write answer: %v", err)
		}
	}

	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}

	payload := readUntil(conn, t, "submitted")
	var submitted struct {
		AttemptID string `json:"attemptId"`
		Score     int    `json:"score"`
		Accuracy  int    `json:"accuracy"`
		Total     int    `json:"total"`
	}
	if err := json.Unmarshal(payload, &submitted); err != nil {
		t.Fatalf("decode submitted: %v", err)
	}
	if submitted.Score != 2 || submitted.Accuracy != 100 || submitted.Total != 2 {
		t.Fatalf("unexpected result: %+v", submitted)
	}

	// the attempt landed in the store
	attempts, err := results.List(context.Background(), store.Filter{}, store.Sort{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 1 || attempts[0].ID != submitted.AttemptID {
		t.Fatalf("expected stored attempt %s, got %+v", submitted.AttemptID, attempts)
	}
}

func TestWebSocketViewAnswers(t *testing.T) {
	server, _ := newWSServer(t)
	conn := dialWS(t, server, "Alice", "13812345678")

	readUntil(conn, t, "session")
	if err := conn.WriteJSON(map[string]any{"type": "submit"}); err != nil {
		t.Fatalf("write submit: %v", err)
	}
	readUntil(conn, t, "submitted")

	if err := conn.WriteJSON(map[string]any{"type": "view_answers"}); err != nil {
		t.Fatalf("write view_answers: %v", err)
	}
	payload := readUntil(conn, t, "answers")
	var details []struct {
		Chosen  int  `json:"chosen"`
		Correct bool `json:"correct"`
	}
	if err := json.Unmarshal(payload, &details); err != nil {
		t.Fatalf("decode answers: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 answer details, got %d", len(details))
	}

	// viewing gates the identity: a fresh connection is rejected
	retry := dialWS(t, server, "Alice", "13812345678")
	typ, _ := readNext(retry, t)
	if typ != "error" {
		t.Fatalf("expected error envelope for gated identity, got %s", typ)
	}
}

func TestWebSocketRejectsInvalidIdentity(t *testing.T) {
	server, _ := newWSServer(t)
	conn := dialWS(t, server, "Alice", "12345")

	typ, _ := readNext(conn, t)
	if typ != "error" {
		t.Fatalf("expected error envelope, got %s", typ)
	}
}

func TestWebSocketViewAnswersBeforeSubmit(t *testing.T) {
	server, _ := newWSServer(t)
	conn := dialWS(t, server, "Bob", "13987654321")

	readUntil(conn, t, "session")
	if err := conn.WriteJSON(map[string]any{"type": "view_answers"}); err != nil {
		t.Fatalf("write view_answers: %v", err)
	}
	typ, _ := readNext(conn, t)
	for typ == "tick" {
		typ, _ = readNext(conn, t)
	}
	if typ != "error" {
		t.Fatalf("expected error before submission, got %s", typ)
	}
}
