// Package admin holds the admin-only endpoints: user management and the
// dispute desk.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/stonemart/internal/apperr"
	"github.com/sudo-init-do/stonemart/internal/middleware"
	"github.com/sudo-init-do/stonemart/internal/models"
	"github.com/sudo-init-do/stonemart/internal/store"
)

type AdminUser struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

type Handler struct {
	users    store.Users
	disputes DisputeDesk
}

func NewHandler(users store.Users, disputes DisputeDesk) *Handler {
	return &Handler{users: users, disputes: disputes}
}

// Promote sets a user's role by email. stonectl uses it directly.
func Promote(ctx context.Context, users store.Users, email string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperr.Invalid("unknown role %q", role)
	}
	u, err := users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Fatal(err, "failed to load user")
	}
	if err := users.UpdateUserRole(ctx, u.ID, role); err != nil {
		return nil, apperr.Fatal(err, "failed to update role")
	}
	u.Role = role
	return u, nil
}

// GET /admin/users
func (h *Handler) ListUsers(c echo.Context) error {
	page, err := middleware.PageFrom(c)
	if err != nil {
		return err
	}
	role := models.Role(c.QueryParam("role"))
	if role != "" && !role.Valid() {
		return apperr.Invalid("unknown role %q", role)
	}

	list, total, err := h.users.ListUsers(c.Request().Context(), role, page)
	if err != nil {
		return apperr.Fatal(err, "could not fetch users")
	}
	users := make([]AdminUser, 0, len(list))
	for _, u := range list {
		users = append(users, AdminUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, IsActive: u.IsActive, CreatedAt: u.CreatedAt})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "total": total, "page": page.Page})
}

// POST /admin/users/:id/suspend
func (h *Handler) SuspendUser(c echo.Context) error {
	return h.setActive(c, false, "user suspended")
}

// POST /admin/users/:id/activate
func (h *Handler) ActivateUser(c echo.Context) error {
	return h.setActive(c, true, "user activated")
}

func (h *Handler) setActive(c echo.Context, active bool, message string) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user id required"})
	}
	if self, _ := c.Get("user_id").(string); self == userID && !active {
		return apperr.Conflict("admins cannot suspend themselves")
	}

	err := h.users.SetUserActive(c.Request().Context(), userID, active)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Fatal(err, "failed to update user")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": message, "user_id": userID})
}

// POST /admin/users/:id/role
func (h *Handler) SetRole(c echo.Context) error {
	userID := c.Param("id")
	var req struct {
		Role models.Role `json:"role"`
	}
	if err := c.Bind(&req); err != nil || !req.Role.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be one of buyer, vendor, driver, admin"})
	}

	err := h.users.UpdateUserRole(c.Request().Context(), userID, req.Role)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	if err != nil {
		return apperr.Fatal(err, "failed to update role")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "role updated", "user_id": userID, "role": req.Role})
}
