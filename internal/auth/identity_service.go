package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/cache"
	"github.com/castellan-io/castellan/internal/models"
	apperrors "github.com/castellan-io/castellan/pkg/errors"
	"github.com/castellan-io/castellan/pkg/logger"
	"github.com/castellan-io/castellan/pkg/metrics"
)

// IdentityCacheKeyPrefix namespaces cached principals in the shared store.
const IdentityCacheKeyPrefix = "users:identity:"

// DefaultIdentityTTL bounds how stale a cached principal can get when an
// invalidation is lost; it is a backstop, not the primary coherence mechanism.
const DefaultIdentityTTL = 30 * time.Minute

// IdentityService resolves request principals: users hydrated with their
// roles, the roles' menus and data scopes, and the scopes' rules. Resolved
// principals are cached; data-scope and role mutations invalidate them.
type IdentityService struct {
	db    *gorm.DB
	store cache.Store
	ttl   time.Duration
	log   *zap.Logger
}

// NewIdentityService constructs an identity service. store may be nil, in
// which case every lookup hits the database.
func NewIdentityService(db *gorm.DB, store cache.Store, ttl time.Duration) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity service: db is required")
	}
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &IdentityService{
		db:    db,
		store: store,
		ttl:   ttl,
		log:   logger.WithModule("identity"),
	}, nil
}

// Resolve returns the fully hydrated principal for the user id.
func (s *IdentityService) Resolve(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	if user, ok := s.fromCache(ctx, userID); ok {
		metrics.IdentityCacheEvents.WithLabelValues("hit").Inc()
		return user, nil
	}
	metrics.IdentityCacheEvents.WithLabelValues("miss").Inc()

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles.Menus").
		Preload("Roles.Scopes.Rules").
		Preload("Dept").
		First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("identity service: load user: %w", err)
	}
	if user.Status != models.StatusEnabled {
		return nil, apperrors.ErrForbidden.WithMessage("Account is disabled")
	}

	s.toCache(ctx, &user)
	return &user, nil
}

// Invalidate drops the cached principals for the supplied user ids. Failures
// are aggregated and reported but the caller's write is already committed;
// the TTL backstop covers any entry that survives.
func (s *IdentityService) Invalidate(ctx context.Context, userIDs ...string) error {
	if s.store == nil || len(userIDs) == 0 {
		return nil
	}

	var errs error
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.store.Delete(ctx, IdentityCacheKeyPrefix+id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("user %s: %w", id, err))
			continue
		}
		metrics.IdentityCacheEvents.WithLabelValues("invalidate").Inc()
	}

	if errs != nil {
		s.log.Error("identity invalidation incomplete", zap.Error(errs))
	}
	return errs
}

// InvalidateAll drops every cached principal.
func (s *IdentityService) InvalidateAll(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.DeleteByPrefix(ctx, IdentityCacheKeyPrefix)
}

func (s *IdentityService) fromCache(ctx context.Context, userID string) (*models.User, bool) {
	if s.store == nil {
		return nil, false
	}

	data, found, err := s.store.Get(ctx, IdentityCacheKeyPrefix+userID)
	if err != nil {
		s.log.Warn("identity cache read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		s.log.Warn("identity cache decode failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	return &user, true
}

func (s *IdentityService) toCache(ctx context.Context, user *models.User) {
	if s.store == nil {
		return
	}

	payload, err := json.Marshal(user)
	if err != nil {
		s.log.Warn("identity cache encode failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, IdentityCacheKeyPrefix+user.ID, payload, s.ttl); err != nil {
		s.log.Warn("identity cache write failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
