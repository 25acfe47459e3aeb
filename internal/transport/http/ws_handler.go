package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"quizdeck/internal/app"
	"quizdeck/internal/domain"
	"quizdeck/internal/selector"
)

// WSHandler runs scored quiz attempts over a websocket. The socket is the
// session's lifetime: closing it ends the attempt.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wsQuestion is the client view of a question in a scored attempt. The
// correct answer stays server-side until the question is answered.
type wsQuestion struct {
	Text          string   `json:"text"`
	Answers       []string `json:"answers"`
	OriginalIndex *int     `json:"originalIndex,omitempty"`
}

type startedPayload struct {
	SessionID string       `json:"sessionId"`
	Mode      string       `json:"mode"`
	Questions []wsQuestion `json:"questions"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

type answerResultPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correctAnswer"`
}

type advancePayload struct {
	Next int `json:"next"`
}

type flagPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Reason        string `json:"reason"`
}

type upvotePayload struct {
	QuestionIndex int `json:"questionIndex"`
}

type submitPayload struct {
	Name string `json:"name"`
}

// ServeWS upgrades the request and drives one attempt: select questions,
// accept answers and flags, and report the outcome on finish.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quizID := q.Get("quizId")
	userID := q.Get("user")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	mode := selector.Mode(q.Get("mode"))
	if mode == "" {
		mode = selector.ModeQuick
	}
	if mode == selector.ModeStudy {
		http.Error(w, "study mode is served over the REST API", http.StatusBadRequest)
		return
	}
	var params selector.Params
	params.Count, _ = strconv.Atoi(q.Get("count"))
	params.StartIndex, _ = strconv.Atoi(q.Get("start"))
	name := q.Get("name")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	// Single writer goroutine; the advance timer and the read loop both
	// produce messages, and gorilla connections allow one writer at a time.
	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	// push is safe to call after the socket is gone; the message is dropped.
	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-done:
		}
	}
	pushErr := func(err error) {
		push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}

	onAdvance := func(next int) {
		push(outboundMessage[any]{Type: "advance", Payload: advancePayload{Next: next}})
	}

	started, err := h.service.Start(r.Context(), quizID, userID, mode, params, onAdvance)
	if err != nil {
		pushErr(err)
		close(done)
		<-writerDone
		return
	}
	defer h.service.End(started.SessionID)

	views := make([]wsQuestion, len(started.Questions))
	for i, question := range started.Questions {
		views[i] = wsQuestion{
			Text:          question.Text,
			Answers:       question.Answers,
			OriginalIndex: question.OriginalIndex,
		}
	}
	push(outboundMessage[any]{Type: "started", Payload: startedPayload{
		SessionID: started.SessionID,
		Mode:      string(started.Mode),
		Questions: views,
	}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pushErr(errInvalidPayload)
				continue
			}
			result, err := h.service.Answer(r.Context(), started.SessionID, payload.QuestionIndex, payload.Answer)
			if err != nil {
				pushErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "answerResult", Payload: answerResultPayload{
				QuestionIndex: payload.QuestionIndex,
				Correct:       result.Correct,
				CorrectAnswer: result.CorrectAnswer,
			}})
		case "flag":
			var payload flagPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pushErr(errInvalidPayload)
				continue
			}
			flag, err := h.service.FlagQuestion(r.Context(), started.SessionID, payload.QuestionIndex, payload.Reason)
			if err != nil {
				pushErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "flagged", Payload: flag})
		case "upvote":
			var payload upvotePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pushErr(errInvalidPayload)
				continue
			}
			upvotes, err := h.service.UpvoteFlag(r.Context(), started.SessionID, payload.QuestionIndex)
			if err != nil {
				pushErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "upvoted", Payload: map[string]int{"upvotes": upvotes}})
		case "finish":
			result, err := h.service.Finish(r.Context(), started.SessionID, name)
			if err != nil {
				pushErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "finished", Payload: result})
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pushErr(errInvalidPayload)
				continue
			}
			entry, err := h.service.SubmitScore(r.Context(), started.SessionID, payload.Name)
			if err != nil {
				pushErr(err)
				continue
			}
			push(outboundMessage[any]{Type: "submitted", Payload: entry})
		default:
			pushErr(errUnsupportedType)
		}
	}

	close(done)
	<-writerDone
}

var (
	errInvalidPayload  = domain.Validationf("payload", "invalid message payload")
	errUnsupportedType = domain.Validationf("type", "unsupported message type")
)
