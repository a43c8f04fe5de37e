package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// UsersHandler exposes registration and sign-in.
type UsersHandler struct {
	auth     *service.AuthService
	validate *validator.Validate
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, validate *validator.Validate) *UsersHandler {
	return &UsersHandler{auth: authService, validate: validate}
}

// Register handles POST /auth/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		return err
	}

	user, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, "User registered successfully", dto.NewUserResponse(user))
}

// SignIn handles POST /auth/signin.
func (h *UsersHandler) SignIn(c *fiber.Ctx) error {
	var req dto.UserSignInRequest
	if err := bindJSON(c, h.validate, &req); err != nil {
		return err
	}

	token, exp, err := h.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, "Login successful", dto.AuthResponse{Token: token, ExpiresAt: exp})
}
