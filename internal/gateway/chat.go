package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"expensechat/internal/auth"
	"expensechat/internal/brain"
	"expensechat/internal/domain"
)

// maxChatBody bounds the size of a POST /chat body.
const maxChatBody = 1 << 20

// chatRequestBody is the POST /chat payload. The caller owns the
// conversation and sends it back with every message.
type chatRequestBody struct {
	Message             string           `json:"message"`
	ConversationHistory []domain.Message `json:"conversationHistory"`
}

// chatErrorBody is returned for failed exchanges. Response carries the text
// to show the user; Error is a short machine-readable reason.
type chatErrorBody struct {
	Error    string `json:"error"`
	Response string `json:"response,omitempty"`
}

// jsonMarshal is used when encoding responses; tests may replace it to force Marshal errors.
// Access is protected by jsonMarshalMu for race-safe test swaps.
var (
	jsonMarshalMu sync.RWMutex
	jsonMarshal   = json.Marshal
)

func marshalJSON(v any) ([]byte, error) {
	jsonMarshalMu.RLock()
	marshal := jsonMarshal
	jsonMarshalMu.RUnlock()
	return marshal(v)
}

// handleChat serves POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		s.writeJSON(w, http.StatusMethodNotAllowed, chatErrorBody{Error: "method not allowed"})
		return
	}
	var body chatRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&body); err != nil {
		s.writeJSON(w, http.StatusBadRequest, chatErrorBody{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		s.writeJSON(w, http.StatusBadRequest, chatErrorBody{Error: "message is required"})
		return
	}

	owner := auth.OwnerFrom(r.Context())
	reply, err := s.chat.Handle(r.Context(), domain.ChatRequest{
		Message: body.Message,
		History: body.ConversationHistory,
		OwnerID: owner,
	})
	if err != nil {
		status, reason := errorStatus(err)
		text := brain.Guidance(err)
		if reply != nil && reply.Reply != "" {
			text = reply.Reply
		}
		s.log().Warn("chat failed", "owner", owner, "status", status, "error", err)
		s.writeJSON(w, status, chatErrorBody{Error: reason, Response: text})
		return
	}
	if reply.ToolResults == nil {
		reply.ToolResults = []domain.ToolResult{}
	}
	s.writeJSON(w, http.StatusOK, reply)
}

// errorStatus maps a failed exchange to an HTTP status and reason.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "rate limited"
	case errors.Is(err, domain.ErrPaymentRequired):
		return http.StatusPaymentRequired, "payment required"
	default:
		return http.StatusBadGateway, "completion service unavailable"
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := marshalJSON(v)
	if err != nil {
		s.log().Error("encode response failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log().Debug("write response failed", "error", err)
	}
}
