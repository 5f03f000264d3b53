package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-blog-platform/internal/blacklist"
	"go-blog-platform/internal/event"
	"go-blog-platform/internal/model"
)

// dummyHash keeps the bcrypt cost of a failed lookup identical to a real
// comparison so login timing does not reveal whether a username exists.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

type userStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	IncrementFailedAttempts(ctx context.Context, userID string) error
	LockAccount(ctx context.Context, userID string, until time.Time) error
	ResetFailedAttempts(ctx context.Context, userID string) error
}

type refreshTokenStore interface {
	Store(ctx context.Context, token string, userID string, expiresAt time.Time) error
	Validate(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

type AuthService struct {
	users       userStore
	tokens      refreshTokenStore
	revocations blacklist.Store
	bus         event.Bus

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	loginMaxAttempts int
	loginLockout     time.Duration

	now func() time.Time
}

func NewAuthService(
	jwtSecret string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
	users userStore,
	tokens refreshTokenStore,
	revocations blacklist.Store,
	bus event.Bus,
) (*AuthService, error) {
	if jwtSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	return &AuthService{
		users:            users,
		tokens:           tokens,
		revocations:      revocations,
		bus:              bus,
		jwtSecret:        []byte(jwtSecret),
		accessTTL:        accessTTL,
		refreshTTL:       refreshTTL,
		loginMaxAttempts: 5,
		loginLockout:     15 * time.Minute,
		now:              time.Now,
	}, nil
}

// SetLockoutPolicy overrides the failed-login threshold and lock duration.
func (s *AuthService) SetLockoutPolicy(maxAttempts int, lockout time.Duration) {
	if maxAttempts > 0 {
		s.loginMaxAttempts = maxAttempts
	}
	if lockout > 0 {
		s.loginLockout = lockout
	}
}

// AccessTTL exposes the configured access-token lifetime; the blacklist
// watermark TTL must be at least this long.
func (s *AuthService) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (model.TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return model.TokenPair{}, model.ErrInvalidCredentials
		}
		return model.TokenPair{}, err
	}

	now := s.now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return model.TokenPair{}, model.ErrAccountLocked
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.users.IncrementFailedAttempts(ctx, user.ID); err != nil {
			slog.Warn("failed to record login attempt", "user_id", user.ID, "error", err)
		}
		if user.FailedLoginAttempts+1 >= s.loginMaxAttempts {
			if err := s.users.LockAccount(ctx, user.ID, now.Add(s.loginLockout)); err != nil {
				slog.Warn("failed to lock account", "user_id", user.ID, "error", err)
			}
		}
		return model.TokenPair{}, model.ErrInvalidCredentials
	}

	if !user.Active() {
		return model.TokenPair{}, model.ErrUserDisabled
	}

	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
			slog.Warn("failed to reset login attempts", "user_id", user.ID, "error", err)
		}
	}

	return s.issueTokenPair(ctx, user)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.ValidateToken(refreshToken, "refresh")
	if err != nil {
		return model.TokenPair{}, err
	}

	ownerID, err := s.tokens.Validate(ctx, refreshToken)
	if err != nil || ownerID != claims.UserID {
		return model.TokenPair{}, model.ErrSessionExpired
	}

	// Refresh tokens honor the same watermark as access tokens: a forced
	// logout must not be undone by an old refresh token.
	revoked, err := s.revocations.IsUserRevoked(ctx, claims.UserID, time.Unix(claims.IssuedAt, 0))
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("%w: %w", model.ErrAuthStoreUnavailable, err)
	}
	if revoked {
		return model.TokenPair{}, model.ErrSessionExpired
	}

	// Rotate: the presented token is single-use.
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		return model.TokenPair{}, err
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.TokenPair{}, model.ErrSessionExpired
	}
	if !user.Active() {
		return model.TokenPair{}, model.ErrUserDisabled
	}

	return s.issueTokenPair(ctx, user)
}

// Logout revokes the presented access token for its remaining lifetime and
// discards the refresh token. Revocation is explicit; nothing else expires
// sessions early.
func (s *AuthService) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	if claims, err := s.ValidateToken(accessToken, "access"); err == nil {
		ttl := time.Until(time.Unix(claims.Expiry, 0))
		if err := s.revocations.RevokeToken(ctx, accessToken, ttl); err != nil {
			return err
		}
	}

	if refreshToken != "" {
		if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

// ForceLogout invalidates every session the user currently holds by setting
// their logout watermark to now and dropping stored refresh tokens.
func (s *AuthService) ForceLogout(ctx context.Context, userID string) error {
	now := s.now().UTC()
	if err := s.revocations.RevokeAllForUser(ctx, userID, now); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	if s.bus != nil {
		s.bus.Publish(event.Event{
			ID:           uuid.NewString(),
			Type:         event.TypeSessionRevoked,
			Timestamp:    now.Format(time.RFC3339),
			TargetUserID: userID,
		})
	}
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	if len(newPassword) < 8 {
		return model.ErrInvalidInput
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return model.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), 12)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	// Old sessions must not survive a password change.
	return s.ForceLogout(ctx, userID)
}

func (s *AuthService) GetUserByID(ctx context.Context, userID string) (model.AuthUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return model.AuthUser{ID: user.ID, Username: user.Username, Status: user.Status}, nil
}

// ValidateToken verifies signature and expiry and returns the decoded claims.
// It performs no blacklist or user lookups; those are the guard's later steps.
func (s *AuthService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, model.ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid {
		return nil, model.ErrUnauthorized
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrUnauthorized
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, model.ErrUnauthorized
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.Username, _ = claimsMap["username"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)
	if iat, err := claimsMap.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Unix()
	}
	if exp, err := claimsMap.GetExpirationTime(); err == nil && exp != nil {
		claims.Expiry = exp.Unix()
	}

	if claims.UserID == "" || claims.IssuedAt == 0 {
		return nil, model.ErrUnauthorized
	}

	return claims, nil
}

func (s *AuthService) issueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	now := s.now().UTC()

	accessToken, err := s.signToken(jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"typ":      "access",
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      now.Add(s.accessTTL).Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	refreshExpiry := now.Add(s.refreshTTL)
	refreshToken, err := s.signToken(jwt.MapClaims{
		"sub":      user.ID,
		"username": user.Username,
		"typ":      "refresh",
		"jti":      uuid.NewString(),
		"iat":      now.Unix(),
		"exp":      refreshExpiry.Unix(),
	})
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := s.tokens.Store(ctx, refreshToken, user.ID, refreshExpiry); err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
		User:         model.AuthUser{ID: user.ID, Username: user.Username, Status: user.Status},
	}, nil
}

func (s *AuthService) signToken(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
