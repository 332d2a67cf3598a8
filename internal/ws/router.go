package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/services"
	"github.com/yungbote/mindpath-backend/internal/sessionlock"
)

// Envelope is the client request frame.
type Envelope struct {
	Event   string          `json:"event"`
	Seq     int64           `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

type ackError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Ack answers exactly one Envelope, matched by Seq.
type Ack struct {
	OK    bool      `json:"ok"`
	Seq   int64     `json:"seq"`
	Event string    `json:"event"`
	Data  any       `json:"data,omitempty"`
	Error *ackError `json:"error,omitempty"`
}

// HandlerFunc may return data alongside an error; conflict rejections carry
// context the client branches on (e.g. the session a takeover would evict).
type HandlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) (any, error)

type RouterOptions struct {
	// ActionCooldown is the advisory per-connection, per-event throttle.
	ActionCooldown time.Duration
	// Heartbeat is the session-lock refresh interval per connection.
	Heartbeat time.Duration
	// HandlerTimeout bounds one event's processing.
	HandlerTimeout time.Duration
}

func (o RouterOptions) withDefaults() RouterOptions {
	if o.ActionCooldown <= 0 {
		o.ActionCooldown = 300 * time.Millisecond
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = 15 * time.Second
	}
	if o.HandlerTimeout <= 0 {
		o.HandlerTimeout = 30 * time.Second
	}
	return o
}

type Router struct {
	log      *logger.Logger
	hub      *Hub
	auth     services.AuthService
	lock     sessionlock.Service
	opts     RouterOptions
	handlers map[string]HandlerFunc
	upgrader websocket.Upgrader
}

func NewRouter(log *logger.Logger, hub *Hub, auth services.AuthService, lock sessionlock.Service, deps HandlerDeps, opts RouterOptions) *Router {
	r := &Router{
		log:      log.With("component", "WSRouter"),
		hub:      hub,
		auth:     auth,
		lock:     lock,
		opts:     opts.withDefaults(),
		handlers: make(map[string]HandlerFunc),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	registerHandlers(r, deps)
	return r
}

func (r *Router) handle(event string, fn HandlerFunc) {
	r.handlers[event] = fn
}

// Serve upgrades an authenticated HTTP request into a websocket session. A
// missing or invalid bearer token rejects before the upgrade.
func (r *Router) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerFrom(c.GetHeader("Authorization"))
	}
	rd, err := r.auth.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := newClient(r.hub, r.log, conn, r.lock, rd.UserID, rd.Email, r.opts.Heartbeat)
	r.hub.register(client)
	go client.writePump()
	go client.heartbeatPump()
	client.readPump(r)
}

func bearerFrom(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

func (r *Router) dispatch(c *Client, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		c.sendEvent("error", map[string]any{"message": "malformed envelope"})
		return
	}

	ack := Ack{Seq: env.Seq, Event: env.Event}
	fn, ok := r.handlers[env.Event]
	if !ok {
		ack.Error = &ackError{Code: apierr.CodeValidation, Message: "unknown event"}
		c.sendEvent("ack", ack)
		return
	}
	if !r.allowAction(c, env.Event) {
		ack.Error = &ackError{Code: apierr.CodeValidation, Message: "action throttled, retry shortly"}
		c.sendEvent("ack", ack)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.HandlerTimeout)
	defer cancel()

	data, err := fn(ctx, c, env.Payload)
	ack.Data = data
	if err != nil {
		ack.Error = toAckError(err)
		r.log.Debug("Event rejected", "event", env.Event, "code", ack.Error.Code, "user_id", c.UserID)
	} else {
		ack.OK = true
	}
	c.sendEvent("ack", ack)
}

// allowAction is the advisory per-connection throttle; it only trims bursts
// and never substitutes for the durable checks the services run.
func (r *Router) allowAction(c *Client, event string) bool {
	now := time.Now()
	c.actionMu.Lock()
	defer c.actionMu.Unlock()
	if last, ok := c.lastAction[event]; ok && now.Sub(last) < r.opts.ActionCooldown {
		return false
	}
	c.lastAction[event] = now
	return true
}

func toAckError(err error) *ackError {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return &ackError{Code: apiErr.Code, Message: apiErr.Err.Error()}
	}
	return &ackError{Code: "INTERNAL", Message: "internal error"}
}
