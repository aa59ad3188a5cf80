package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-desk/complaint-portal/internal/api/dto"
	"github.com/civic-desk/complaint-portal/internal/auth"
	"github.com/civic-desk/complaint-portal/internal/presence"
	"github.com/civic-desk/complaint-portal/internal/service"
	apperrors "github.com/civic-desk/complaint-portal/pkg/util/errorutil"
)

// AuthHandler exposes login, logout and the caller's profile.
type AuthHandler struct {
	accounts *service.AccountService
	tracker  *presence.Tracker
}

// NewAuthHandler constructs handler.
func NewAuthHandler(accounts *service.AccountService, tracker *presence.Tracker) *AuthHandler {
	return &AuthHandler{accounts: accounts, tracker: tracker}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	result, err := h.accounts.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      dto.NewUserResponse(result.Account),
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.ErrCredentialMissing
	}
	if err := h.accounts.Logout(c.UserContext(), principal); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.ErrCredentialMissing
	}
	account, err := h.accounts.Profile(c.UserContext(), principal)
	if err != nil {
		return err
	}
	connections := 0
	if h.tracker != nil {
		connections = h.tracker.ConnectionCount(account.ID)
	}
	return c.JSON(dto.MeResponse{User: dto.NewUserResponse(account), Connections: connections})
}
