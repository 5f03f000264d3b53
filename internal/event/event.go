package event

type Type string

const (
	TypeSessionRevoked      Type = "session.revoked"
	TypeUserStatusChanged   Type = "user.status_changed"
	TypeRoleUpdated         Type = "role.updated"
	TypeNotificationCreated Type = "notification.created"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	// TargetUserID routes the event to one user's live connections;
	// empty means broadcast.
	TargetUserID string `json:"target_user_id,omitempty"`
}
