package services

import (
	"github.com/google/uuid"

	"github.com/yungbote/mindpath-backend/internal/types"
)

// Notifier is how services reach the realtime layer without depending on it.
// The websocket hub implements this; a nil notifier is a no-op.
type Notifier interface {
	RoomStateChanged(roomID uuid.UUID)
	InterventionGenerated(iv *types.Intervention)
	InterventionUpdated(iv *types.Intervention)
	ProgressSummaryStatus(roomID, participantID uuid.UUID, status string)
}

// Presence exposes the advisory in-process connection registry. It is never
// authoritative: it only gates obviously-redundant work and the facilitator
// presence check on rolls.
type Presence interface {
	FacilitatorOnline(roomID uuid.UUID) bool
	TrackedRooms() []uuid.UUID
}

type noopNotifier struct{}

func (noopNotifier) RoomStateChanged(uuid.UUID)                         {}
func (noopNotifier) InterventionGenerated(*types.Intervention)          {}
func (noopNotifier) InterventionUpdated(*types.Intervention)            {}
func (noopNotifier) ProgressSummaryStatus(uuid.UUID, uuid.UUID, string) {}

// NoopNotifier is used until the hub is wired, and in tests.
func NoopNotifier() Notifier { return noopNotifier{} }
