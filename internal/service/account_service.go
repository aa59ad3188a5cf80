package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/config"
	"github.com/civic-desk/complaint-portal/internal/domain"
	"github.com/civic-desk/complaint-portal/internal/events"
	"github.com/civic-desk/complaint-portal/internal/locks"
	"github.com/civic-desk/complaint-portal/internal/repository"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// AccountService coordinates login, logout and manager administration.
// Every mutation of an account's enabled flag, presence flag or ledger runs
// under that account's lock; events are dispatched after the lock is released.
type AccountService struct {
	accounts   repository.AccountRepository
	ledger     *LoginLedger
	gate       *auth.Gate
	locks      *locks.KeyedMutex
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
}

// AccountDependencies encapsulates collaborators of the account service.
type AccountDependencies struct {
	AccountRepo repository.AccountRepository
	Ledger      *LoginLedger
	Gate        *auth.Gate
	Locks       *locks.KeyedMutex
	Dispatcher  events.Dispatcher
}

// LoginResult carries the issued credential.
type LoginResult struct {
	Account   *domain.Account
	Token     string
	ExpiresAt time.Time
}

// CreateManagerInput describes a new department manager.
type CreateManagerInput struct {
	Name       string
	Email      string
	Password   string
	Department string
	Active     *bool
}

// NewAccountService builds the service.
func NewAccountService(cfg config.Config, deps AccountDependencies, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	return &AccountService{
		accounts:   deps.AccountRepo,
		ledger:     deps.Ledger,
		gate:       deps.Gate,
		locks:      deps.Locks,
		dispatcher: dispatcher,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Login authenticates by email and password, opens the ledger session and
// issues a credential. A disabled account is rejected before the password is compared.
func (s *AccountService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("Email and password required", nil)
	}

	found, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, apperrors.NewInternalError(err)
	}

	var (
		result *LoginResult
		opened bool
	)
	err = s.withAccount(found.ID, func() error {
		account, err := s.accounts.GetByID(ctx, found.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ErrInvalidCredentials
			}
			return apperrors.NewInternalError(err)
		}
		if !account.Active {
			return apperrors.ErrAccountDisabled
		}
		if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
			return err
		}

		if _, opened, err = s.ledger.OpenSession(ctx, account.ID); err != nil {
			return apperrors.NewInternalError(err)
		}
		account.IsOnline = true

		token, exp, err := s.gate.Tokens().Issue(account)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		result = &LoginResult{Account: account, Token: token, ExpiresAt: exp}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account logged in", zap.String("account_id", result.Account.ID), zap.Bool("session_opened", opened))
	if opened {
		s.publish(ctx, events.New(events.EventPresenceChanged, result.Account.ID, result.Account.ID, events.PresenceChangedPayload{Online: true}))
	}
	return result, nil
}

// Logout closes the caller's ledger session and asks the realtime side to drop its sockets.
func (s *AccountService) Logout(ctx context.Context, principal *auth.Principal) error {
	var closed *domain.LoginHistoryEntry
	err := s.withAccount(principal.AccountID, func() error {
		entry, err := s.ledger.CloseSession(ctx, principal.AccountID)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		closed = entry
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, events.New(events.EventSessionTerminated, principal.AccountID, principal.AccountID, events.SessionTerminatedPayload{Reason: "Logged out"}))
	if closed != nil {
		s.publish(ctx, events.New(events.EventPresenceChanged, principal.AccountID, principal.AccountID, events.PresenceChangedPayload{Online: false}))
	}
	return nil
}

// Profile returns the caller's current account record.
func (s *AccountService) Profile(ctx context.Context, principal *auth.Principal) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, principal.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.NewInternalError(err)
	}
	return account, nil
}

// ListManagers returns department managers, newest first.
func (s *AccountService) ListManagers(ctx context.Context, actor *auth.Principal) ([]domain.Account, error) {
	if err := auth.Authorize(actor, auth.CapManageAccounts); err != nil {
		return nil, err
	}
	managers, err := s.accounts.ListByRole(ctx, domain.RoleDepartmentManager)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return managers, nil
}

// CreateManager adds a department manager account.
func (s *AccountService) CreateManager(ctx context.Context, actor *auth.Principal, input CreateManagerInput) (*domain.Account, error) {
	if err := auth.Authorize(actor, auth.CapManageAccounts); err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	input.Department = strings.TrimSpace(input.Department)
	if input.Name == "" || input.Email == "" || input.Password == "" || input.Department == "" {
		return nil, apperrors.NewValidationError("Name, email, password and department are required", nil)
	}

	if _, err := s.accounts.GetByEmail(ctx, input.Email); err == nil {
		return nil, emailTaken(input.Email)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewInternalError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}
	department := input.Department
	account := &domain.Account{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         domain.RoleDepartmentManager,
		Department:   &department,
		Active:       active,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, emailTaken(input.Email)
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.logger.Info("manager created",
		zap.String("account_id", account.ID),
		zap.String("department", department),
		zap.String("actor_id", actor.AccountID))
	return account, nil
}

func emailTaken(email string) error {
	return apperrors.NewConflict("Email already exists", map[string]any{"email": email})
}

// ToggleAccess flips the account's enabled flag. Disabling closes the ledger
// session in the same critical section, so no open entry survives for a disabled account.
func (s *AccountService) ToggleAccess(ctx context.Context, actor *auth.Principal, id string) (*domain.Account, error) {
	if err := auth.Authorize(actor, auth.CapManageAccounts); err != nil {
		return nil, err
	}

	var (
		account *domain.Account
		closed  *domain.LoginHistoryEntry
	)
	err := s.withAccount(id, func() error {
		var err error
		account, err = s.accounts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("Manager", map[string]any{"id": id})
			}
			return apperrors.NewInternalError(err)
		}

		account.Active = !account.Active
		if err := s.accounts.SetActive(ctx, id, account.Active); err != nil {
			return apperrors.NewInternalError(err)
		}
		if account.Active {
			return nil
		}

		closed, err = s.ledger.CloseSession(ctx, id)
		if err != nil {
			// the flag is already persisted; the gate rejects the account from here on
			s.logger.Warn("close session on disable failed", zap.String("account_id", id), zap.Error(err))
			return nil
		}
		account.IsOnline = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("access toggled",
		zap.String("account_id", id),
		zap.Bool("active", account.Active),
		zap.String("actor_id", actor.AccountID))
	s.publish(ctx, events.New(events.EventAccessChanged, id, actor.AccountID, events.AccessChangedPayload{Active: account.Active}))
	if closed != nil {
		s.publish(ctx, events.New(events.EventPresenceChanged, id, actor.AccountID, events.PresenceChangedPayload{Online: false}))
	}
	return account, nil
}

// DeleteManager removes a department manager. Other roles cannot be deleted here.
func (s *AccountService) DeleteManager(ctx context.Context, actor *auth.Principal, id string) error {
	if err := auth.Authorize(actor, auth.CapManageAccounts); err != nil {
		return err
	}

	err := s.withAccount(id, func() error {
		account, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("Manager", map[string]any{"id": id})
			}
			return apperrors.NewInternalError(err)
		}
		if account.Role != domain.RoleDepartmentManager {
			return apperrors.NewForbidden("Not allowed")
		}
		if err := s.accounts.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("manager deleted", zap.String("account_id", id), zap.String("actor_id", actor.AccountID))
	s.publish(ctx, events.New(events.EventAccessChanged, id, actor.AccountID, events.AccessChangedPayload{Active: false, Deleted: true}))
	return nil
}

// LoginHistory returns the account's ledger in chronological order.
func (s *AccountService) LoginHistory(ctx context.Context, actor *auth.Principal, id string) ([]domain.LoginHistoryEntry, error) {
	if err := auth.Authorize(actor, auth.CapManageAccounts); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("Manager", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	entries, err := s.ledger.History(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return entries, nil
}

func (s *AccountService) withAccount(id string, fn func() error) error {
	unlock := s.locks.Lock(id)
	defer unlock()
	return fn()
}

func (s *AccountService) publish(ctx context.Context, event events.Event) {
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
