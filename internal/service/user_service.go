package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-blog-platform/internal/event"
	"go-blog-platform/internal/model"
)

type userAdminStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	UpdateStatus(ctx context.Context, userID string, status string) error
	List(ctx context.Context) ([]model.AuthUser, error)
}

// UserService covers admin account management. Status transitions away from
// active immediately invalidate the user's sessions: the watermark write
// happens here, not on the next request.
type UserService struct {
	users  userAdminStore
	auth   *AuthService
	access *AccessService
	bus    event.Bus
}

func NewUserService(users userAdminStore, auth *AuthService, access *AccessService, bus event.Bus) *UserService {
	return &UserService{users: users, auth: auth, access: access, bus: bus}
}

func (s *UserService) List(ctx context.Context) ([]model.AuthUser, error) {
	return s.users.List(ctx)
}

func (s *UserService) Get(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return model.AuthUser{ID: user.ID, Username: user.Username, Status: user.Status}, nil
}

func (s *UserService) UpdateStatus(ctx context.Context, userID string, status string) error {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case model.UserStatusActive, model.UserStatusBanned, model.UserStatusInactive:
	default:
		return model.ErrInvalidInput
	}

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}
	if err := s.users.UpdateStatus(ctx, userID, status); err != nil {
		return err
	}

	if status != model.UserStatusActive {
		if err := s.auth.ForceLogout(ctx, userID); err != nil {
			return err
		}
		s.access.Invalidate(ctx, userID)
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{
			ID:           uuid.NewString(),
			Type:         event.TypeUserStatusChanged,
			Payload:      map[string]string{"user_id": userID, "status": status},
			Timestamp:    time.Now().UTC().Format(time.RFC3339),
			TargetUserID: userID,
		})
	}
	return nil
}

// ForceLogout is the admin "kick every session" action.
func (s *UserService) ForceLogout(ctx context.Context, userID string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}
	return s.auth.ForceLogout(ctx, userID)
}
