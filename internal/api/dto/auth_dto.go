package dto

import (
	"time"

	"github.com/spec-kit/transport-portal/internal/domain"
)

// SignupRequest payload for new citizen accounts.
type SignupRequest struct {
	FirstName  string `json:"firstName" validate:"required,max=50"`
	LastName   string `json:"lastName" validate:"required,max=50"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone"`
	NationalID string `json:"nationalId"`
	Password   string `json:"password" validate:"required,min=6"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID         string      `json:"id"`
	FirstName  string      `json:"firstName"`
	LastName   string      `json:"lastName"`
	Email      string      `json:"email"`
	Phone      string      `json:"phone,omitempty"`
	NationalID string      `json:"nationalId,omitempty"`
	Role       domain.Role `json:"role"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// NewUserResponse maps a domain user without its password hash.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Phone:      u.Phone,
		NationalID: u.NationalID,
		Role:       u.Role,
		CreatedAt:  u.CreatedAt,
	}
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
