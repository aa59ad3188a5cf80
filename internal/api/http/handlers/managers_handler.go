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

// ManagersHandler exposes department manager administration.
type ManagersHandler struct {
	accounts *service.AccountService
	tracker  *presence.Tracker
	mirror   presence.Mirror
}

// NewManagersHandler constructs handler. mirror may be nil.
func NewManagersHandler(accounts *service.AccountService, tracker *presence.Tracker, mirror presence.Mirror) *ManagersHandler {
	return &ManagersHandler{accounts: accounts, tracker: tracker, mirror: mirror}
}

// List handles GET /api/managers.
func (h *ManagersHandler) List(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	managers, err := h.accounts.ListManagers(c.UserContext(), actor)
	if err != nil {
		return err
	}
	out := make([]dto.ManagerResponse, 0, len(managers))
	for i := range managers {
		out = append(out, dto.NewManagerResponse(&managers[i]))
	}
	return c.JSON(out)
}

// Create handles POST /api/managers/create-manager.
func (h *ManagersHandler) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateManagerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	manager, err := h.accounts.CreateManager(c.UserContext(), actor, service.CreateManagerInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
		Active:     req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.CreateManagerResponse{
		Message: "Manager created successfully",
		Manager: dto.NewManagerResponse(manager),
	})
}

// Toggle handles PUT /api/managers/toggle/:id.
func (h *ManagersHandler) Toggle(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	account, err := h.accounts.ToggleAccess(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.ToggleResponse{Message: "Access updated successfully", IsActive: account.Active})
}

// Delete handles DELETE /api/managers/:id.
func (h *ManagersHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.accounts.DeleteManager(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Message: "Manager deleted successfully"})
}

// LoginHistory handles GET /api/managers/:id/login-history.
func (h *ManagersHandler) LoginHistory(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id := c.Params("id")
	entries, err := h.accounts.LoginHistory(c.UserContext(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewLoginHistoryResponse(id, entries))
}

// Online handles GET /api/managers/online. The Redis mirror is preferred since
// it spans instances; the local registry answers when Redis is unavailable.
func (h *ManagersHandler) Online(c *fiber.Ctx) error {
	if h.mirror != nil {
		if ids, err := h.mirror.Online(c.UserContext()); err == nil {
			if ids == nil {
				ids = []string{}
			}
			return c.JSON(dto.OnlineResponse{Online: ids, Source: "redis"})
		}
	}
	return c.JSON(dto.OnlineResponse{Online: h.tracker.OnlineAccounts(), Source: "local"})
}

func actorFrom(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.ErrCredentialMissing
	}
	return principal, nil
}
