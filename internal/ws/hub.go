// Package ws is the realtime surface: one gorilla websocket connection per
// participant, a per-instance hub fanning authoritative room snapshots, and a
// typed event router in front of the services.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/services"
	"github.com/yungbote/mindpath-backend/internal/types"
)

const (
	EventRoomState             = "room:state"
	EventInterventionGenerated = "intervention:generated"
	EventInterventionUpdated   = "intervention:updated"
	EventProgressSummaryStatus = "ai:progressSummaryStatus"
	EventSessionTerminated     = "session:terminated"
)

// Hub tracks the connections of this instance and fans events out to rooms.
// It implements services.Notifier and services.Presence; everything it knows
// is advisory except the snapshots it relays, which are rebuilt from the
// durable store on every broadcast.
type Hub struct {
	log      *logger.Logger
	snapshot services.SnapshotService

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[uuid.UUID]map[uuid.UUID]*Client
}

func NewHub(log *logger.Logger, snapshot services.SnapshotService) *Hub {
	return &Hub{
		log:      log.With("component", "Hub"),
		snapshot: snapshot,
		clients:  make(map[uuid.UUID]*Client),
		rooms:    make(map[uuid.UUID]map[uuid.UUID]*Client),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ConnID)
	roomID := c.roomID()
	if roomID != uuid.Nil {
		if members, ok := h.rooms[roomID]; ok {
			delete(members, c.ConnID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.mu.Unlock()
}

func (h *Hub) joinRoom(c *Client, roomID uuid.UUID) {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[uuid.UUID]*Client)
		h.rooms[roomID] = members
	}
	members[c.ConnID] = c
	h.mu.Unlock()
}

// TerminateConnection pushes session:terminated and closes the named
// connection if it lives on this instance. Used after a forced takeover.
func (h *Hub) TerminateConnection(connID uuid.UUID, reason string) {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.sendEvent(EventSessionTerminated, map[string]any{"reason": reason})
	c.close()
	h.log.Info("Terminated displaced connection", "conn_id", connID, "reason", reason)
}

// BroadcastRoomState rebuilds the snapshot and fans it to every connection
// joined to the room on this instance.
func (h *Hub) BroadcastRoomState(roomID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := h.snapshot.Build(ctx, roomID, h.presenceInfo(roomID))
	if err != nil {
		h.log.Error("Failed to build room snapshot", "room_id", roomID, "error", err)
		return
	}
	h.fanOut(roomID, EventRoomState, snap, false)
}

func (h *Hub) presenceInfo(roomID uuid.UUID) services.PresenceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	info := services.PresenceInfo{}
	seen := map[uuid.UUID]bool{}
	for _, c := range h.rooms[roomID] {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			info.OnlineUserIDs = append(info.OnlineUserIDs, c.UserID)
		}
		if c.role() == types.RoleFacilitator {
			info.FacilitatorOnline = true
		}
	}
	return info
}

// fanOut delivers an event to the room; facilitatorOnly restricts delivery to
// facilitator connections.
func (h *Hub) fanOut(roomID uuid.UUID, event string, data any, facilitatorOnly bool) {
	payload, err := json.Marshal(pushMessage{Event: event, Data: data})
	if err != nil {
		h.log.Error("Failed to marshal push event", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		if facilitatorOnly && c.role() != types.RoleFacilitator {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.sendRaw(payload)
	}
}

type pushMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RoomStateChanged implements services.Notifier.
func (h *Hub) RoomStateChanged(roomID uuid.UUID) {
	h.BroadcastRoomState(roomID)
}

func (h *Hub) InterventionGenerated(iv *types.Intervention) {
	restricted := iv.Visibility == types.VisibilityFacilitatorOnly || iv.Status == types.InterventionPendingApproval
	h.fanOut(iv.RoomID, EventInterventionGenerated, iv, restricted)
}

func (h *Hub) InterventionUpdated(iv *types.Intervention) {
	restricted := iv.Visibility == types.VisibilityFacilitatorOnly
	h.fanOut(iv.RoomID, EventInterventionUpdated, iv, restricted)
}

func (h *Hub) ProgressSummaryStatus(roomID, participantID uuid.UUID, status string) {
	h.fanOut(roomID, EventProgressSummaryStatus, map[string]any{
		"participant_id": participantID,
		"status":         status,
	}, false)
}

// FacilitatorOnline implements services.Presence.
func (h *Hub) FacilitatorOnline(roomID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		if c.role() == types.RoleFacilitator {
			return true
		}
	}
	return false
}

func (h *Hub) TrackedRooms() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]uuid.UUID, 0, len(h.rooms))
	for roomID := range h.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}
