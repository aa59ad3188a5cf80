package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/repository"
)

// EnsureDefaultAdmin creates the configured system manager unless a system
// manager already exists or the email is taken. Safe to run from several
// instances at once: a unique-email conflict counts as already provisioned.
func EnsureDefaultAdmin(ctx context.Context, accounts repository.AccountRepository, cfg config.Config, logger *zap.Logger) (created bool, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	count, err := accounts.CountByRole(ctx, domain.RoleSystemManager)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := accounts.GetByEmail(ctx, cfg.Admin.Email); err == nil {
		logger.Warn("default admin email belongs to another account", zap.String("email", cfg.Admin.Email))
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	hash, err := auth.HashPassword(cfg.Admin.Password, cfg.Auth.BcryptCost)
	if err != nil {
		return false, err
	}
	admin := &domain.Account{
		Name:         cfg.Admin.Name,
		Email:        cfg.Admin.Email,
		PasswordHash: hash,
		Role:         domain.RoleSystemManager,
		Active:       true,
	}
	if err := accounts.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}

	logger.Info("default system manager created", zap.String("account_id", admin.ID), zap.String("email", admin.Email))
	return true, nil
}
