package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vincent19951222/quiz-website/internal/app"
	"github.com/vincent19951222/quiz-website/internal/domain"
)

// WSHandler drives one attempt session per websocket connection. The browser
// sends answer/navigate/submit/view_answers commands; the handler pushes
// countdown ticks and the submission result back.
type WSHandler struct {
	service  *app.AttemptService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type navigatePayload struct {
	Index int `json:"index"`
}

type presentedQuestion struct {
	ID      int      `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

type sessionPayload struct {
	SessionID        string              `json:"sessionId"`
	Title            string              `json:"title"`
	Description      string              `json:"description"`
	TimeLimitMinutes int                 `json:"timeLimitMinutes"`
	TotalQuestions   int                 `json:"totalQuestions"`
	Questions        []presentedQuestion `json:"questions"`
}

type submittedPayload struct {
	AttemptID string `json:"attemptId"`
	Score     int    `json:"score"`
	Accuracy  int    `json:"accuracy"`
	Total     int    `json:"total"`
}

type tickPayload struct {
	Remaining int `json:"remaining"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the attempt session until it is
// submitted and the answers were (optionally) viewed, or the client leaves.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := domain.Identity{
		Name:  r.URL.Query().Get("name"),
		Phone: r.URL.Query().Get("phone"),
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	env := domain.Environment{
		UserAgent: r.UserAgent(),
		Origin:    originLabel(r),
	}
	session, err := h.service.Start(r.Context(), identity, env)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Abandon(session.ID())

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("ws write error", "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case event, ok := <-session.Events():
				if !ok {
					return
				}
				msg, keep := translateEvent(event)
				if !keep {
					continue
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: buildSessionPayload(session)}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			if err := session.SelectAnswer(payload.QuestionIndex, payload.OptionIndex); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "navigate":
			var payload navigatePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid navigate payload"}}
				continue
			}
			if err := session.Navigate(payload.Index); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "submit":
			if _, err := h.service.Submit(r.Context(), session.ID()); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
			// The submitted envelope arrives through the event pump, so a
			// second submit does not produce a second notification.
		case "view_answers":
			details, err := h.service.ViewAnswers(r.Context(), session.ID())
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "answers", Payload: details}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

func buildSessionPayload(session *app.Session) sessionPayload {
	doc := session.Document()
	questions := make([]presentedQuestion, len(session.Questions()))
	for i, q := range session.Questions() {
		// Correct options and explanations stay server-side until the
		// attempt is submitted.
		questions[i] = presentedQuestion{ID: q.ID, Text: q.Text, Options: q.Options}
	}
	return sessionPayload{
		SessionID:        session.ID(),
		Title:            doc.Title,
		Description:      doc.Description,
		TimeLimitMinutes: doc.TimeLimitMinutes,
		TotalQuestions:   len(questions),
		Questions:        questions,
	}
}

func translateEvent(event app.Event) (outboundMessage[any], bool) {
	switch event.Type {
	case app.EventTick:
		return outboundMessage[any]{Type: "tick", Payload: tickPayload{Remaining: event.Remaining}}, true
	case app.EventSubmitted:
		if event.Attempt == nil {
			return outboundMessage[any]{}, false
		}
		return outboundMessage[any]{Type: "submitted", Payload: submittedPayload{
			AttemptID: event.Attempt.ID,
			Score:     event.Attempt.Score,
			Accuracy:  event.Attempt.Accuracy,
			Total:     len(event.Attempt.Answers),
		}}, true
	default:
		return outboundMessage[any]{}, false
	}
}

func originLabel(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	return r.RemoteAddr
}
