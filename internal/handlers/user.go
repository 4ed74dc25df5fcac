package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/nkiryanov/accounts/internal/apperrors"
	"github.com/nkiryanov/accounts/internal/handlers/render"
	"github.com/nkiryanov/accounts/internal/handlers/userctx"
	"github.com/nkiryanov/accounts/internal/logger"
	"github.com/nkiryanov/accounts/internal/models"
)

type userService interface {
	CreateUser(ctx context.Context, newUser models.NewUser) (models.User, error)
	GetUser(ctx context.Context, actor models.User, id uuid.UUID) (models.User, error)
	ListUsers(ctx context.Context, skip int, limit int) ([]models.User, error)
	UpdateUser(ctx context.Context, actor models.User, id uuid.UUID, update models.UserUpdate) (models.User, error)
	DeleteUser(ctx context.Context, actor models.User, id uuid.UUID) error
}

type UserHandler struct {
	users  userService
	logger logger.Logger
}

func NewUser(users userService, l logger.Logger) *UserHandler {
	return &UserHandler{users: users, logger: l}
}

func (h *UserHandler) me(w http.ResponseWriter, r *http.Request) {
	user := userctx.MustFromContext(r.Context())
	render.Success(w, http.StatusOK, "User retrieved successfully", newUserResponse(user))
}

func (h *UserHandler) list(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	users, err := h.users.ListUsers(r.Context(), skip, limit)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "Users retrieved successfully", newUsersResponse(users))
}

func (h *UserHandler) create(w http.ResponseWriter, r *http.Request) {
	type CreateUserRequest struct {
		Email    string `json:"email" validate:"required,email,max=255"`
		Username string `json:"username" validate:"omitempty,min=3,max=50"`
		FullName string `json:"full_name" validate:"max=100"`
		Password string `json:"password" validate:"required,password"`
		Role     string `json:"role" validate:"omitempty,oneof=admin user"`
		IsActive *bool  `json:"is_active"`
	}

	data, err := render.BindAndValidate[CreateUserRequest](w, r)
	if err != nil {
		return
	}

	isActive := true
	if data.IsActive != nil {
		isActive = *data.IsActive
	}

	user, err := h.users.CreateUser(r.Context(), models.NewUser{
		Email:    data.Email,
		Username: data.Username,
		FullName: data.FullName,
		Password: data.Password,
		Role:     models.Role(data.Role),
		IsActive: isActive,
	})
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusCreated, "User created successfully", newUserResponse(user))
}

func (h *UserHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	user, err := h.users.GetUser(r.Context(), userctx.MustFromContext(r.Context()), id)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "User retrieved successfully", newUserResponse(user))
}

func (h *UserHandler) update(w http.ResponseWriter, r *http.Request) {
	// Username is checked by service, so empty one may clear it
	type UpdateUserRequest struct {
		Email    *string `json:"email" validate:"omitempty,email,max=255"`
		Username *string `json:"username" validate:"omitempty,max=50"`
		FullName *string `json:"full_name" validate:"omitempty,max=100"`
		IsActive *bool   `json:"is_active"`
		Role     *string `json:"role" validate:"omitempty,oneof=admin user"`
	}

	id, err := pathID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	data, err := render.BindAndValidate[UpdateUserRequest](w, r)
	if err != nil {
		return
	}

	update := models.UserUpdate{
		Email:    data.Email,
		Username: data.Username,
		FullName: data.FullName,
		IsActive: data.IsActive,
	}
	if data.Role != nil {
		role := models.Role(*data.Role)
		update.Role = &role
	}

	user, err := h.users.UpdateUser(r.Context(), userctx.MustFromContext(r.Context()), id, update)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "User updated successfully", newUserResponse(user))
}

func (h *UserHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		renderError(w, h.logger, err)
		return
	}

	if err := h.users.DeleteUser(r.Context(), userctx.MustFromContext(r.Context()), id); err != nil {
		renderError(w, h.logger, err)
		return
	}

	render.Success(w, http.StatusOK, "User deleted successfully", nil)
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return id, &apperrors.FieldError{Field: "id", Message: "must be a valid UUID"}
	}
	return id, nil
}

// Absent parameter is zero
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &apperrors.FieldError{Field: name, Message: "must be an integer"}
	}
	return v, nil
}
