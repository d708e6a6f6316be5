package user

import "relay-chat/internal/models"

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Success bool              `json:"success"`
	User    models.PublicUser `json:"user"`
}

type LoginResponse struct {
	Success     bool              `json:"success"`
	User        models.PublicUser `json:"user"`
	AccessToken string            `json:"accessToken"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
