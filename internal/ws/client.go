package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/sessionlock"
	"github.com/yungbote/mindpath-backend/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 32
)

// Client is one authenticated websocket connection.
type Client struct {
	ConnID uuid.UUID
	UserID uuid.UUID
	Email  string

	hub  *Hub
	log  *logger.Logger
	conn *websocket.Conn
	lock sessionlock.Service

	heartbeat time.Duration
	send      chan []byte
	closeOnce sync.Once
	done      chan struct{}

	mu            sync.RWMutex
	room          uuid.UUID
	participantID uuid.UUID
	partRole      types.ParticipantRole

	// lastAction is the advisory per-event throttle. Never authoritative.
	actionMu   sync.Mutex
	lastAction map[string]time.Time
}

func newClient(hub *Hub, log *logger.Logger, conn *websocket.Conn, lock sessionlock.Service, userID uuid.UUID, email string, heartbeat time.Duration) *Client {
	connID := uuid.New()
	return &Client{
		ConnID:     connID,
		UserID:     userID,
		Email:      email,
		hub:        hub,
		log:        log.With("conn_id", connID, "user_id", userID),
		conn:       conn,
		lock:       lock,
		heartbeat:  heartbeat,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		lastAction: make(map[string]time.Time),
	}
}

func (c *Client) roomID() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) role() types.ParticipantRole {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.partRole
}

func (c *Client) participant() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

func (c *Client) setSession(roomID, participantID uuid.UUID, role types.ParticipantRole) {
	c.mu.Lock()
	c.room = roomID
	c.participantID = participantID
	c.partRole = role
	c.mu.Unlock()
}

func (c *Client) sendEvent(event string, data any) {
	payload, err := json.Marshal(pushMessage{Event: event, Data: data})
	if err != nil {
		c.log.Error("Failed to marshal event", "event", event, "error", err)
		return
	}
	c.sendRaw(payload)
}

// sendRaw queues a frame; a full buffer drops the connection rather than
// blocking the broadcaster.
func (c *Client) sendRaw(payload []byte) {
	select {
	case c.send <- payload:
	case <-c.done:
	default:
		c.log.Warn("Send buffer full, dropping connection")
		c.close()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump(router *Router) {
	defer c.disconnect()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected close", "error", err)
			}
			return
		}
		router.dispatch(c, payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// heartbeatPump keeps the distributed session lock alive while the connection
// lives. A refused refresh means another connection took the session over.
func (c *Client) heartbeatPump() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			roomID := c.roomID()
			if roomID == uuid.Nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			ok, err := c.lock.Refresh(ctx, c.UserID.String(), c.ConnID.String(), roomID.String())
			cancel()
			if err != nil {
				c.log.Warn("Session refresh failed", "error", err)
				continue
			}
			if !ok {
				c.sendEvent(EventSessionTerminated, map[string]any{"reason": "session taken over"})
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// disconnect tears the connection down: hub deregistration, guarded lock
// release, and a presence rebroadcast for the room the user was visible in.
func (c *Client) disconnect() {
	c.close()
	roomID := c.roomID()
	c.hub.unregister(c)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.lock.Release(ctx, c.UserID.String(), c.ConnID.String()); err != nil {
		c.log.Error("Failed to release session on disconnect", "error", err)
	}
	if roomID != uuid.Nil {
		c.hub.BroadcastRoomState(roomID)
	}
}
