package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

const minPasswordLen = 6

type SignupRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
}

type SignupResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Signup creates a buyer, vendor or driver account. Admins are only made
// through the bootstrap account or an existing admin.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*SignupResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if req.Role == "" {
		req.Role = models.RoleBuyer
	}

	switch {
	case req.Name == "":
		return nil, apperr.Invalid("name is required")
	case !strings.Contains(req.Email, "@"):
		return nil, apperr.Invalid("a valid email is required")
	case len(req.Password) < minPasswordLen:
		return nil, apperr.Invalid("password must be at least %d characters", minPasswordLen)
	case req.Role != models.RoleBuyer && req.Role != models.RoleVendor && req.Role != models.RoleDriver:
		return nil, apperr.Invalid("role must be one of buyer, vendor, driver")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Fatal(err, "server error")
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hashed),
		Role:         req.Role,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("email already exists")
		}
		return nil, apperr.Fatal(err, "failed to create account")
	}

	token, err := s.IssueToken(u.ID, u.Role)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", u.ID).WithField("role", u.Role).Info("account created")
	return &SignupResponse{Token: token, User: u}, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ===== Signup =====
func (h *Handler) Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid request"})
	}

	resp, err := h.svc.Signup(c.Request().Context(), *req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}
