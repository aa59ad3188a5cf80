package dto

import (
	"time"

	"github.com/civic-desk/complaint-portal/internal/domain"
)

// LoginRequest payload for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the account view returned to its owner.
type UserResponse struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Role       domain.Role `json:"role"`
	Department *string     `json:"department"`
	IsActive   bool        `json:"isActive"`
	IsOnline   bool        `json:"isOnline"`
}

// LoginResponse carries the issued credential.
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      UserResponse `json:"user"`
}

// MeResponse describes the caller and its live realtime connections.
type MeResponse struct {
	User        UserResponse `json:"user"`
	Connections int          `json:"connections"`
}

// MessageResponse is a bare acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// NewUserResponse projects an account.
func NewUserResponse(account *domain.Account) UserResponse {
	return UserResponse{
		ID:         account.ID,
		Name:       account.Name,
		Email:      account.Email,
		Role:       account.Role,
		Department: account.Department,
		IsActive:   account.Active,
		IsOnline:   account.IsOnline,
	}
}
