package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/castellan-io/castellan/internal/models"
)

// AuditListOptions extends pagination with audit-specific filters.
type AuditListOptions struct {
	ListOptions
	Username   string
	Permission string
}

// AuditService records and queries the operation and login logs.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Record stores one audit entry. Called by the audit middleware after the
// response is written; errors are returned for logging, never to the client.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) error {
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("audit service: record: %w", err)
	}
	return nil
}

// ListOperations returns a page of operation logs, newest first.
func (s *AuditService) ListOperations(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if username := strings.TrimSpace(opts.Username); username != "" {
		query = query.Where("username LIKE ?", "%"+username+"%")
	}
	if opts.Permission != "" {
		query = query.Where("permission = ?", opts.Permission)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count: %w", err)
	}

	var logs []models.AuditLog
	err := query.Order("created_at DESC").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list: %w", err)
	}
	return logs, total, nil
}

// ListLogins returns a page of login logs, newest first.
func (s *AuditService) ListLogins(ctx context.Context, opts AuditListOptions) ([]models.LoginLog, int64, error) {
	opts.normalize()

	query := s.db.WithContext(ctx).Model(&models.LoginLog{})
	if username := strings.TrimSpace(opts.Username); username != "" {
		query = query.Where("username LIKE ?", "%"+username+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count: %w", err)
	}

	var logs []models.LoginLog
	err := query.Order("created_at DESC").
		Offset(opts.offset()).Limit(opts.PerPage).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list: %w", err)
	}
	return logs, total, nil
}

// Prune deletes log entries older than the retention window and returns how
// many rows were removed. Invoked by the maintenance cleaner.
func (s *AuditService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)

	ops := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if ops.Error != nil {
		return 0, fmt.Errorf("audit service: prune operations: %w", ops.Error)
	}

	logins := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.LoginLog{})
	if logins.Error != nil {
		return ops.RowsAffected, fmt.Errorf("audit service: prune logins: %w", logins.Error)
	}

	return ops.RowsAffected + logins.RowsAffected, nil
}
