package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/auth"
	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/models"
	"github.com/castellan-io/castellan/pkg/crypto"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/logger"
	"github.com/castellan-io/castellan/pkg/metrics"
)

const (
	loginAttemptKeyPrefix = "auth:attempts:"
	maxLoginAttempts      = 5
	loginAttemptWindow    = 15 * time.Minute
)

// LoginRequest carries login credentials plus the request fingerprint used
// for the login log.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResult bundles the issued token with the authenticated account.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// AuthService authenticates accounts and issues access tokens. Failed
// attempts are throttled per username through the shared cache store.
type AuthService struct {
	db    *gorm.DB
	jwt   *auth.JWTService
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewAuthService constructs an AuthService. store may be nil, disabling the
// attempt throttle.
func NewAuthService(db *gorm.DB, jwt *auth.JWTService, store cache.Store, tokenTTL time.Duration) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if jwt == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	if tokenTTL <= 0 {
		tokenTTL = auth.DefaultAccessTokenTTL
	}
	return &AuthService{
		db:    db,
		jwt:   jwt,
		store: store,
		ttl:   tokenTTL,
		log:   logger.WithModule("auth"),
	}, nil
}

// Login verifies the credentials and issues an access token. Every attempt is
// recorded in the login log regardless of outcome.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.Username == "" || req.Password == "" {
		return nil, apperrors.ErrBadRequest.WithMessage("Username and password are required")
	}

	if err := s.checkThrottle(ctx, req.Username); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", req.Username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, s.fail(ctx, req, nil, "unknown username")
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, req.Password) {
		return nil, s.fail(ctx, req, &user, "wrong password")
	}
	if user.Status != models.StatusEnabled {
		return nil, s.fail(ctx, req, &user, "account disabled")
	}

	token, err := s.jwt.GenerateAccessToken(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	now := time.Now()
	updates := map[string]any{"last_login_at": now, "last_login_ip": req.IPAddress}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		s.log.Warn("last login bookkeeping failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.record(ctx, models.LoginLog{
		UserID:    user.ID,
		Username:  user.Username,
		Success:   true,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	})
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	return &LoginResult{
		Token:     token,
		ExpiresAt: now.Add(s.ttl),
		User:      &user,
	}, nil
}

// fail books a failed attempt and returns the uniform credentials error; the
// reason stays in the login log, never in the response.
func (s *AuthService) fail(ctx context.Context, req LoginRequest, user *models.User, reason string) error {
	entry := models.LoginLog{
		Username:  req.Username,
		Success:   false,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Message:   reason,
	}
	if user != nil {
		entry.UserID = user.ID
	}
	s.record(ctx, entry)
	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	s.bumpThrottle(ctx, req.Username)
	return apperrors.ErrInvalidCredentials
}

func (s *AuthService) record(ctx context.Context, entry models.LoginLog) {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("login log write failed", zap.String("username", entry.Username), zap.Error(err))
	}
}

func (s *AuthService) checkThrottle(ctx context.Context, username string) error {
	if s.store == nil {
		return nil
	}

	data, found, err := s.store.Get(ctx, loginAttemptKeyPrefix+username)
	if err != nil {
		s.log.Warn("login throttle read failed", zap.String("username", username), zap.Error(err))
		return nil
	}
	if found && len(data) > 0 && parseAttempts(data) >= maxLoginAttempts {
		return apperrors.ErrRateLimit.WithMessage("Too many failed login attempts, try again later")
	}
	return nil
}

func (s *AuthService) bumpThrottle(ctx context.Context, username string) {
	if s.store == nil {
		return
	}
	if _, _, err := s.store.IncrementWithTTL(ctx, loginAttemptKeyPrefix+username, loginAttemptWindow); err != nil {
		s.log.Warn("login throttle bump failed", zap.String("username", username), zap.Error(err))
	}
}

// parseAttempts reads the counter the store keeps as decimal text.
func parseAttempts(data []byte) int64 {
	var n int64
	for _, c := range data {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
