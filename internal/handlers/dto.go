package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/models"
)

// User as it is exposed by API, password hash never leaves the service
type UserResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Username  *string     `json:"username"`
	FullName  string      `json:"full_name"`
	IsActive  bool        `json:"is_active"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func newUserResponse(u models.User) UserResponse {
	resp := UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		IsActive:  u.IsActive,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.Username != "" {
		username := u.Username
		resp.Username = &username
	}
	return resp
}

func newUsersResponse(users []models.User) []UserResponse {
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, newUserResponse(u))
	}
	return resp
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`

	// Access token lifetime in seconds
	ExpiresIn int64 `json:"expires_in"`
}

func newTokenResponse(pair models.TokenPair, now time.Time) TokenResponse {
	return TokenResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		TokenType:    "bearer",
		ExpiresIn:    int64(pair.Access.ExpiresAt.Sub(now).Round(time.Second).Seconds()),
	}
}
