package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ecoproof-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types pushed over the WebSocket
const (
	EventVoteCast  = "vote_cast"
	EventFinalized = "submission_finalized"
	EventRewarded  = "reward_paid"
	EventError     = "error"
)

// Event represents a WebSocket message
type Event struct {
	Type         string            `json:"type"`
	Timestamp    int64             `json:"timestamp"`
	SubmissionID int64             `json:"data_id,omitempty"`
	Status       models.PostStatus `json:"status,omitempty"`
	Message      string            `json:"message,omitempty"`
	Data         interface{}       `json:"data,omitempty"`
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// EventHub manages WebSocket connections and pushes submission events to their owners
type EventHub struct {
	mu          sync.RWMutex
	connections map[string]*wsConn
	now         Clock
}

// NewEventHub creates a new WebSocket hub
func NewEventHub(now Clock) *EventHub {
	return &EventHub{
		connections: make(map[string]*wsConn),
		now:         now.orDefault(),
	}
}

// Register registers a new WebSocket connection for a user, replacing any previous one
func (h *EventHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, ok := h.connections[userID]; ok {
		existing.conn.Close()
	}
	h.connections[userID] = &wsConn{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes a user's connection if it is still conn
func (h *EventHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.connections[userID]
	if !ok || (conn != nil && current.conn != conn) {
		return
	}
	current.conn.Close()
	delete(h.connections, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
}

// IsOnline checks if a user is connected
func (h *EventHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.connections[userID]
	return ok
}

// SendToUser sends an event to a specific user
func (h *EventHub) SendToUser(userID string, event Event) error {
	h.mu.RLock()
	c, ok := h.connections[userID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}
	if event.Timestamp == 0 {
		event.Timestamp = h.now().UnixMilli()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.write(data); err != nil {
		h.Unregister(userID, c.conn)
		return fmt.Errorf("failed to send event: %w", err)
	}
	return nil
}

// publish delivers best effort; offline users simply miss the event
func (h *EventHub) publish(userID string, event Event) {
	if !h.IsOnline(userID) {
		return
	}
	if err := h.SendToUser(userID, event); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Str("type", event.Type).Msg("Failed to push event")
	}
}

// NotifyVote tells a submission owner about a new vote tally
func (h *EventHub) NotifyVote(ownerID string, summary models.VoteSummary) {
	h.publish(ownerID, Event{
		Type:         EventVoteCast,
		SubmissionID: summary.SubmissionID,
		Data:         summary,
	})
}

// NotifyFinalized tells a submission owner the outcome of finalization
func (h *EventHub) NotifyFinalized(ownerID string, result FinalizeResult) {
	h.publish(ownerID, Event{
		Type:         EventFinalized,
		SubmissionID: result.SubmissionID,
		Status:       result.Status,
		Message:      result.Message,
	})
}

// NotifyReward implements RewardNotifier
func (h *EventHub) NotifyReward(_ context.Context, userID string, c Confirmation) {
	h.publish(userID, Event{
		Type:         EventRewarded,
		SubmissionID: c.SubmissionID,
		Status:       models.StatusPaid,
		Message:      c.Message,
		Data:         c,
	})
}
