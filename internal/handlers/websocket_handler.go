package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"bridge-backend/internal/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WebSocketHandler bridges connected clients onto the notification
// broadcaster. One registered observer per connection; all writes to the
// socket go through a single write loop.
type WebSocketHandler struct {
	broadcaster *services.NotificationBroadcaster
	tracker     *services.BridgeStateTracker
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates the WebSocket handler.
func NewWebSocketHandler(broadcaster *services.NotificationBroadcaster, tracker *services.BridgeStateTracker) *WebSocketHandler {
	return &WebSocketHandler{
		broadcaster: broadcaster,
		tracker:     tracker,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ClientMessage is an inbound frame.
type ClientMessage struct {
	Type    string `json:"type"`              // "subscribe" | "unsubscribe" | "ping"
	Channel string `json:"channel,omitempty"` // "transactions.<id>" | "user.<id>"
}

// ServerMessage is an outbound frame.
type ServerMessage struct {
	Type      string      `json:"type"` // "welcome" | "subscribed" | "unsubscribed" | "broadcast" | "pong" | "error"
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// HandleWebSocket upgrades the connection and runs the session.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := h.extractUserFromToken(r)
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()
	observer := h.broadcaster.RegisterObserver(clientID, 256)
	defer h.broadcaster.Disconnect(clientID)

	// Control frames (pong/subscribed/error) from the read goroutine funnel
	// through this channel so the write loop stays the only writer.
	controlChan := make(chan ServerMessage, 16)

	log.Printf("📡 WebSocket client connected: %s (user: %s)", clientID, userID)

	conn.WriteJSON(ServerMessage{
		Type:      "welcome",
		Message:   "Connected to bridge notification service",
		Timestamp: time.Now(),
	})

	readDone := make(chan struct{})
	go h.readLoop(conn, clientID, userID, controlChan, readDone)

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case event, ok := <-observer.MessageChan:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			frame := ServerMessage{
				Type:      "broadcast",
				Data:      event,
				Timestamp: time.Now(),
			}
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("❌ [WebSocket] Write error for client %s: %v", clientID, err)
				return
			}
		case frame := <-controlChan:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(frame); err != nil {
				log.Printf("❌ [WebSocket] Control write error for client %s: %v", clientID, err)
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("❌ [WebSocket] Ping error for client %s: %v", clientID, err)
				return
			}
		case <-readDone:
			log.Printf("🔌 [WebSocket] Client %s disconnected", clientID)
			return
		}
	}
}

// readLoop consumes inbound frames until the connection drops.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, clientID, userID string, controlChan chan<- ServerMessage, readDone chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [WebSocket] PANIC recovered in read goroutine for client %s: %v", clientID, r)
		}
		close(readDone)
	}()

	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		messageType, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return
			}
			log.Printf("⚠️ [WebSocket] Read error for client %s: %v", clientID, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.queueControl(controlChan, ServerMessage{
				Type:      "error",
				Message:   "malformed message",
				Timestamp: time.Now(),
			})
			continue
		}

		h.handleClientMessage(clientID, userID, &msg, controlChan)
	}
}

// handleClientMessage applies one inbound frame. Unknown types get an error
// frame; the connection stays open.
func (h *WebSocketHandler) handleClientMessage(clientID, userID string, msg *ClientMessage, controlChan chan<- ServerMessage) {
	switch msg.Type {
	case "ping":
		h.queueControl(controlChan, ServerMessage{Type: "pong", Timestamp: time.Now()})

	case "subscribe":
		if !h.channelAllowed(msg.Channel, userID) {
			h.queueControl(controlChan, ServerMessage{
				Type:      "error",
				Channel:   msg.Channel,
				Message:   "subscription not allowed",
				Timestamp: time.Now(),
			})
			return
		}
		if err := h.broadcaster.Subscribe(clientID, msg.Channel); err != nil {
			h.queueControl(controlChan, ServerMessage{
				Type:      "error",
				Channel:   msg.Channel,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		log.Printf("✅ Client %s subscribed to %s", clientID, msg.Channel)
		h.queueControl(controlChan, ServerMessage{
			Type:      "subscribed",
			Channel:   msg.Channel,
			Timestamp: time.Now(),
		})

	case "unsubscribe":
		if err := h.broadcaster.Unsubscribe(clientID, msg.Channel); err != nil {
			h.queueControl(controlChan, ServerMessage{
				Type:      "error",
				Channel:   msg.Channel,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			return
		}
		h.queueControl(controlChan, ServerMessage{
			Type:      "unsubscribed",
			Channel:   msg.Channel,
			Timestamp: time.Now(),
		})

	default:
		h.queueControl(controlChan, ServerMessage{
			Type:      "error",
			Message:   "unknown message type: " + msg.Type,
			Timestamp: time.Now(),
		})
	}
}

// channelAllowed enforces channel ownership: a client may watch its own user
// channel and the transaction channels of transactions it submitted.
func (h *WebSocketHandler) channelAllowed(channel, userID string) bool {
	switch {
	case strings.HasPrefix(channel, "user."):
		return strings.TrimPrefix(channel, "user.") == userID
	case strings.HasPrefix(channel, "transactions."):
		txID := strings.TrimPrefix(channel, "transactions.")
		tx, ok := h.tracker.Snapshot(txID)
		if !ok {
			// Not in the live table; allow and let the stream stay silent.
			return true
		}
		return tx.UserID == userID
	default:
		return false
	}
}

func (h *WebSocketHandler) queueControl(controlChan chan<- ServerMessage, frame ServerMessage) {
	select {
	case controlChan <- frame:
	default:
		log.Printf("⚠️ [WebSocket] Control channel full, dropping %s frame", frame.Type)
	}
}

// extractUserFromToken pulls the user id from the JWT in the query string or
// Authorization header.
func (h *WebSocketHandler) extractUserFromToken(r *http.Request) string {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if token == "" {
		return ""
	}

	claims, err := ValidateJWTToken(token)
	if err != nil {
		log.Printf("❌ JWT validation failed: %v", err)
		return ""
	}
	return claims.AccountAddress
}
