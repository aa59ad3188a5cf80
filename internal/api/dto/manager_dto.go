package dto

import (
	"time"

	"github.com/civic-desk/complaint-portal/internal/domain"
)

// CreateManagerRequest payload for POST /api/managers/create-manager.
type CreateManagerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
	IsActive   *bool  `json:"isActive"`
}

// ManagerResponse is the administrative view of a department manager.
type ManagerResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	IsActive   bool      `json:"isActive"`
	IsOnline   bool      `json:"isOnline"`
	CreatedAt  time.Time `json:"createdAt"`
}

// CreateManagerResponse acknowledges a created manager.
type CreateManagerResponse struct {
	Message string          `json:"message"`
	Manager ManagerResponse `json:"manager"`
}

// ToggleResponse reports the enabled flag after a toggle.
type ToggleResponse struct {
	Message  string `json:"message"`
	IsActive bool   `json:"isActive"`
}

// LoginHistoryEntry is one session window.
type LoginHistoryEntry struct {
	LoginAt  time.Time  `json:"loginAt"`
	LogoutAt *time.Time `json:"logoutAt"`
}

// LoginHistoryResponse lists an account's windows in chronological order.
type LoginHistoryResponse struct {
	ManagerID    string              `json:"managerId"`
	LoginHistory []LoginHistoryEntry `json:"loginHistory"`
}

// OnlineResponse lists accounts with live realtime connections.
type OnlineResponse struct {
	Online []string `json:"online"`
	Source string   `json:"source"`
}

// NewManagerResponse projects an account.
func NewManagerResponse(account *domain.Account) ManagerResponse {
	return ManagerResponse{
		ID:         account.ID,
		Name:       account.Name,
		Email:      account.Email,
		Department: account.DepartmentName(),
		IsActive:   account.Active,
		IsOnline:   account.IsOnline,
		CreatedAt:  account.CreatedAt,
	}
}

// NewLoginHistoryResponse projects ledger entries.
func NewLoginHistoryResponse(accountID string, entries []domain.LoginHistoryEntry) LoginHistoryResponse {
	out := make([]LoginHistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LoginHistoryEntry{LoginAt: e.LoginAt, LogoutAt: e.LogoutAt})
	}
	return LoginHistoryResponse{ManagerID: accountID, LoginHistory: out}
}
