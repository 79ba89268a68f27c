package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"expensechat/internal/auth"
	"expensechat/internal/brain"
	"expensechat/internal/domain"
)

// DefaultChannelID is used when a message arrives without a ChannelID.
const DefaultChannelID = "default"

// maxWSMessage bounds the size of one incoming WebSocket message.
const maxWSMessage = 1 << 20

// WSMessage is the JSON message protocol for the WebSocket gateway.
// Example: {"type": "chat", "content": "spent 200 on groceries", "channelId": "main"}
type WSMessage struct {
	Type        string              `json:"type"`
	Content     string              `json:"content,omitempty"`
	ChannelID   string              `json:"channelId,omitempty"`
	ToolResults []domain.ToolResult `json:"toolResults,omitempty"`
	Degraded    bool                `json:"degraded,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// handleWS upgrades the request and serves chat messages until the client
// disconnects. Conversations live in the server's router, keyed by owner and
// channel so two owners never share history. Unauthenticated connections get
// a private key per connection.
// Each chat message is answered with typing_start, chat and typing_stop.
// Only GET is accepted for the WebSocket handshake.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log().Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessage)

	owner := auth.OwnerFrom(r.Context())
	scope := "owner:" + owner
	if owner == "" {
		scope = "anon:" + uuid.NewString()
	}

	// Anonymous conversations end with the connection.
	keys := make(map[string]struct{})
	defer func() {
		if owner == "" {
			for k := range keys {
				s.router.Forget(k)
			}
		}
	}()

	var writeMu sync.Mutex
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in WSMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			s.writeWS(conn, &writeMu, &WSMessage{Type: "error", Error: "invalid JSON"})
			continue
		}

		channelID := in.ChannelID
		if channelID == "" {
			channelID = DefaultChannelID
		}

		switch in.Type {
		case "ping":
			s.writeWS(conn, &writeMu, &WSMessage{Type: "pong", ChannelID: channelID})
			continue
		case "chat":
		default:
			s.writeWS(conn, &writeMu, &WSMessage{Type: "error", ChannelID: channelID, Error: "unsupported message type"})
			continue
		}

		if strings.TrimSpace(in.Content) == "" {
			s.writeWS(conn, &writeMu, &WSMessage{Type: "error", ChannelID: channelID, Error: "message is required"})
			continue
		}

		key := scope + "/" + channelID
		keys[key] = struct{}{}
		s.writeWS(conn, &writeMu, &WSMessage{Type: "typing_start", ChannelID: channelID})
		out := WSMessage{Type: "chat", ChannelID: channelID}
		reply, err := s.router.Route(r.Context(), key, owner, in.Content)
		if reply != nil {
			out.Content = reply.Reply
			out.ToolResults = reply.ToolResults
			out.Degraded = reply.Degraded
		}
		if err != nil {
			s.log().Warn("ws chat failed", "owner", owner, "channel", channelID, "error", err)
			_, out.Error = errorStatus(err)
			if out.Content == "" {
				out.Content = brain.Guidance(err)
			}
		}
		s.writeWS(conn, &writeMu, &out)
		s.writeWS(conn, &writeMu, &WSMessage{Type: "typing_stop", ChannelID: channelID})
	}
}

func (s *Server) writeWS(conn *websocket.Conn, mu *sync.Mutex, msg *WSMessage) {
	data, err := marshalJSON(msg)
	if err != nil {
		s.log().Error("ws encode failed", "error", err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, data)
}
