package handlers

import (
	"context"
	"errors"

	"github.com/rosterhq/rosterd/internal/csvdoc"
	apierrors "github.com/rosterhq/rosterd/internal/errors"
	"github.com/rosterhq/rosterd/internal/roster"
)

// UserHandler handles the admin-only user management endpoints.
type UserHandler struct {
	roster *roster.Service
}

// NewUserHandler creates a new user handler.
func NewUserHandler(rosterSvc *roster.Service) *UserHandler {
	return &UserHandler{roster: rosterSvc}
}

// ListUsersRequest optionally filters the listing by role.
type ListUsersRequest struct {
	Role string `query:"role"`
}

// ListUsersResponse is the response from listing users.
type ListUsersResponse struct {
	Users []csvdoc.Record `json:"users"`
	Total int             `json:"total"`
}

// ListUsers returns all roster records in document order. Password
// hashes never appear in the response.
func (h *UserHandler) ListUsers(ctx context.Context, req ListUsersRequest) (*ListUsersResponse, error) {
	records, err := h.roster.List(ctx)
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to list users", err)
	}
	if req.Role != "" {
		role := csvdoc.NormalizeRole(req.Role)
		filtered := records[:0]
		for _, r := range records {
			if r.Role == role {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}
	return &ListUsersResponse{Users: records, Total: len(records)}, nil
}

// GetUserRequest identifies a user by email path parameter.
type GetUserRequest struct {
	Email string `path:"email"`
}

// GetUser returns a single roster record.
func (h *UserHandler) GetUser(ctx context.Context, req GetUserRequest) (*csvdoc.Record, error) {
	if req.Email == "" {
		return nil, apierrors.MissingField("email")
	}
	record, err := h.roster.Get(ctx, req.Email)
	if errors.Is(err, roster.ErrNotFound) {
		return nil, apierrors.NotFound("User")
	}
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to load user", err)
	}
	return &record, nil
}

// UpdateUserRequest applies a partial update to the record matching
// Email. Omitted fields keep their current values.
type UpdateUserRequest struct {
	Email     string  `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	NewEmail  *string `json:"newEmail"`
	Role      *string `json:"role"`
}

// UpdateUser modifies an existing record. The password hash is never
// touched.
func (h *UserHandler) UpdateUser(ctx context.Context, req UpdateUserRequest) (*csvdoc.Record, error) {
	if req.Email == "" {
		return nil, apierrors.MissingField("email")
	}
	record, err := h.roster.Update(ctx, req.Email, csvdoc.Update{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.NewEmail,
		Role:      req.Role,
	})
	switch {
	case errors.Is(err, roster.ErrNotFound):
		return nil, apierrors.NotFound("User")
	case errors.Is(err, csvdoc.ErrFieldDelimiter):
		return nil, apierrors.BadRequest(err.Error())
	case err != nil:
		return nil, apierrors.InternalWithError("Failed to update user", err)
	}
	return &record, nil
}

// DeleteUserRequest identifies the record to remove.
type DeleteUserRequest struct {
	Email string `json:"email"`
}

// DeleteUserResponse is the response from deleting a user.
type DeleteUserResponse struct {
	Status string `json:"status"`
}

// DeleteUser removes a record from the roster.
func (h *UserHandler) DeleteUser(ctx context.Context, req DeleteUserRequest) (*DeleteUserResponse, error) {
	if req.Email == "" {
		return nil, apierrors.MissingField("email")
	}
	err := h.roster.Delete(ctx, req.Email)
	if errors.Is(err, roster.ErrNotFound) {
		return nil, apierrors.NotFound("User")
	}
	if err != nil {
		return nil, apierrors.InternalWithError("Failed to delete user", err)
	}
	return &DeleteUserResponse{Status: "ok"}, nil
}
