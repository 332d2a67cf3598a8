package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/mindpath-backend/internal/apierr"
	"github.com/yungbote/mindpath-backend/internal/services"
	"github.com/yungbote/mindpath-backend/internal/types"
)

// HandlerDeps are the services the event handlers call into.
type HandlerDeps struct {
	Room         services.RoomService
	Game         services.GameService
	Therapy      services.TherapyService
	Deck         services.DeckService
	Intervention services.InterventionService
	AI           services.AIService
}

func registerHandlers(r *Router, deps HandlerDeps) {
	r.handle("room:join", r.handleRoomJoin(deps))
	r.handle("room:close", r.handleRoomClose(deps))
	r.handle("game:roll", r.handleGameRoll(deps))
	r.handle("game:nextTurn", r.handleNextTurn(deps))
	r.handle("deck:draw", r.handleDeckDraw(deps))
	r.handle("therapy:save", r.handleTherapySave(deps))
	r.handle("participant:setIntention", r.handleSetIntention(deps))
	r.handle("participant:replicateIntentionToPlayers", r.handleReplicateIntention(deps))
	r.handle("ai:tip", r.handleTip(deps))
	r.handle("ai:finalReport", r.handleFinalReport(deps))
	r.handle("ai:finalReportAll", r.handleFinalReportAll(deps))
	r.handle("intervention:approve", r.handleInterventionApprove(deps))
	r.handle("intervention:dismiss", r.handleInterventionDismiss(deps))
	r.handle("intervention:snooze", r.handleInterventionSnooze(deps))
	r.handle("intervention:feedback", r.handleInterventionFeedback(deps))
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, apierr.Validation(fmt.Errorf("malformed payload: %w", err))
	}
	return v, nil
}

// requireRoom resolves the room the connection joined; events other than
// room:join are meaningless before that.
func requireRoom(c *Client) (uuid.UUID, error) {
	roomID := c.roomID()
	if roomID == uuid.Nil {
		return uuid.Nil, apierr.Validation(fmt.Errorf("join a room first"))
	}
	return roomID, nil
}

func (r *Router) handleRoomJoin(deps HandlerDeps) HandlerFunc {
	type joinPayload struct {
		Code           string `json:"code"`
		DisplayName    string `json:"displayName"`
		Role           string `json:"role"`
		ForceTakeover  bool   `json:"forceTakeover"`
		AdminOpenToken string `json:"adminOpenToken"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		p, err := decode[joinPayload](payload)
		if err != nil {
			return nil, err
		}
		result, err := deps.Room.JoinByCode(ctx, c.UserID, services.JoinParams{
			Code:           p.Code,
			ConnID:         c.ConnID.String(),
			DisplayName:    p.DisplayName,
			Role:           types.ParticipantRole(p.Role),
			ForceTakeover:  p.ForceTakeover,
			AdminOpenToken: p.AdminOpenToken,
		})
		if err != nil {
			// The conflict ack carries the existing session so the client
			// can offer a takeover.
			if result != nil && result.Conflict != nil {
				return map[string]any{"existing": result.Conflict}, err
			}
			return nil, err
		}

		c.setSession(result.Room.ID, result.Participant.ID, result.Participant.Role)
		r.hub.joinRoom(c, result.Room.ID)
		if result.Evicted != nil {
			if evictedConn, pErr := uuid.Parse(result.Evicted.ExistingConnID); pErr == nil {
				r.hub.TerminateConnection(evictedConn, "session taken over")
			}
		}
		r.hub.BroadcastRoomState(result.Room.ID)
		return result, nil
	}
}

func (r *Router) handleRoomClose(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		if err := deps.Room.Close(ctx, roomID, c.UserID); err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return map[string]any{"closed": true}, nil
	}
}

func (r *Router) handleGameRoll(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		result, err := deps.Game.Roll(ctx, roomID, c.UserID, r.hub.FacilitatorOnline(roomID))
		// The broadcast must go out even on a trial-cap rejection: the close
		// committed.
		if err == nil || (result != nil && result.TrialClosedByLimit) {
			r.hub.BroadcastRoomState(roomID)
		}
		if err != nil {
			return result, err
		}

		// Detection runs out of band so generation latency never delays the
		// snapshot the players are waiting on.
		participantID := c.participant()
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), r.opts.HandlerTimeout)
			defer cancel()
			if _, evalErr := deps.Intervention.EvaluateAfterMove(bg, roomID, participantID); evalErr != nil {
				r.log.Error("Post-move evaluation failed", "room_id", roomID, "error", evalErr)
			}
		}()
		return result, nil
	}
}

func (r *Router) handleNextTurn(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, _ json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		if err := deps.Game.NextTurn(ctx, roomID, c.UserID); err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return map[string]any{"advanced": true}, nil
	}
}

func (r *Router) handleDeckDraw(deps HandlerDeps) HandlerFunc {
	type drawPayload struct {
		MoveID *uuid.UUID `json:"moveId"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[drawPayload](payload)
		if err != nil {
			return nil, err
		}
		draw, err := deps.Deck.Draw(ctx, roomID, c.UserID, p.MoveID)
		if err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return draw, nil
	}
}

func (r *Router) handleTherapySave(deps HandlerDeps) HandlerFunc {
	type savePayload struct {
		MoveID      *uuid.UUID `json:"moveId"`
		Emotion     string     `json:"emotion"`
		Intensity   int        `json:"intensity"`
		Insight     string     `json:"insight"`
		Body        string     `json:"body"`
		MicroAction string     `json:"microAction"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[savePayload](payload)
		if err != nil {
			return nil, err
		}
		entry, err := deps.Therapy.Save(ctx, roomID, c.UserID, services.TherapySaveParams{
			MoveID:      p.MoveID,
			Emotion:     p.Emotion,
			Intensity:   p.Intensity,
			Insight:     p.Insight,
			Body:        p.Body,
			MicroAction: p.MicroAction,
		})
		if err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)

		// Emotion-driven detectors react to the new entry.
		participantID := c.participant()
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), r.opts.HandlerTimeout)
			defer cancel()
			if _, evalErr := deps.Intervention.EvaluateAfterMove(bg, roomID, participantID); evalErr != nil {
				r.log.Error("Post-entry evaluation failed", "room_id", roomID, "error", evalErr)
			}
		}()
		return entry, nil
	}
}

func (r *Router) handleSetIntention(deps HandlerDeps) HandlerFunc {
	type intentionPayload struct {
		Intention string `json:"intention"`
		Lock      bool   `json:"lock"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[intentionPayload](payload)
		if err != nil {
			return nil, err
		}
		if err := deps.Room.SetIntention(ctx, roomID, c.UserID, p.Intention, p.Lock); err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return map[string]any{"saved": true}, nil
	}
}

func (r *Router) handleReplicateIntention(deps HandlerDeps) HandlerFunc {
	type intentionPayload struct {
		Intention string `json:"intention"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[intentionPayload](payload)
		if err != nil {
			return nil, err
		}
		if err := deps.Room.ReplicateIntentionToPlayers(ctx, roomID, c.UserID, p.Intention); err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return map[string]any{"replicated": true}, nil
	}
}

func (r *Router) handleTip(deps HandlerDeps) HandlerFunc {
	type tipPayload struct {
		Mode     string `json:"mode"`
		Question string `json:"question"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[tipPayload](payload)
		if err != nil {
			return nil, err
		}
		answer, err := deps.AI.Tip(ctx, roomID, c.UserID, p.Mode, p.Question)
		if err != nil {
			return nil, err
		}
		return map[string]any{"answer": answer}, nil
	}
}

func (r *Router) handleFinalReport(deps HandlerDeps) HandlerFunc {
	type reportPayload struct {
		ParticipantID uuid.UUID `json:"participantId"`
	}
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[reportPayload](payload)
		if err != nil {
			return nil, err
		}
		if p.ParticipantID == uuid.Nil {
			p.ParticipantID = c.participant()
		}
		summary, err := deps.AI.FinalReport(ctx, roomID, c.UserID, p.ParticipantID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"summary": summary}, nil
	}
}

// handleFinalReportAll acks immediately; progress streams through
// ai:progressSummaryStatus events as each participant's summary lands.
func (r *Router) handleFinalReportAll(deps HandlerDeps) HandlerFunc {
	return func(_ context.Context, c *Client, _ json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		userID := c.UserID
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 5*r.opts.HandlerTimeout)
			defer cancel()
			if rErr := deps.AI.FinalReportAll(bg, roomID, userID); rErr != nil {
				r.log.Error("Room final report failed", "room_id", roomID, "error", rErr)
			}
		}()
		return map[string]any{"accepted": true}, nil
	}
}

type interventionPayload struct {
	InterventionID uuid.UUID `json:"interventionId"`
	Mute           bool      `json:"mute"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
}

func (r *Router) handleInterventionApprove(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[interventionPayload](payload)
		if err != nil {
			return nil, err
		}
		iv, err := deps.Intervention.Approve(ctx, roomID, c.UserID, p.InterventionID)
		if err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return iv, nil
	}
}

func (r *Router) handleInterventionDismiss(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[interventionPayload](payload)
		if err != nil {
			return nil, err
		}
		iv, err := deps.Intervention.Dismiss(ctx, roomID, c.UserID, p.InterventionID, p.Mute)
		if err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return iv, nil
	}
}

func (r *Router) handleInterventionSnooze(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[interventionPayload](payload)
		if err != nil {
			return nil, err
		}
		iv, err := deps.Intervention.Snooze(ctx, roomID, c.UserID, p.InterventionID)
		if err != nil {
			return nil, err
		}
		r.hub.BroadcastRoomState(roomID)
		return iv, nil
	}
}

func (r *Router) handleInterventionFeedback(deps HandlerDeps) HandlerFunc {
	return func(ctx context.Context, c *Client, payload json.RawMessage) (any, error) {
		roomID, err := requireRoom(c)
		if err != nil {
			return nil, err
		}
		p, err := decode[interventionPayload](payload)
		if err != nil {
			return nil, err
		}
		if err := deps.Intervention.Feedback(ctx, roomID, c.UserID, p.InterventionID, p.Rating, p.Comment, p.Mute); err != nil {
			return nil, err
		}
		return map[string]any{"recorded": true}, nil
	}
}
