package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pagestack/bookstore-backend/api/middleware"
	internalorders "github.com/pagestack/bookstore-backend/internal/orders"
	"github.com/pagestack/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagestack/bookstore-backend/pkg/errors"
)

// actorFromRequest rebuilds the acting user from the claims the auth
// middleware stored on the context.
func actorFromRequest(r *http.Request) (internalorders.Actor, error) {
	rawUserID := middleware.UserIDFromContext(r.Context())
	if rawUserID == "" {
		return internalorders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseUserRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return internalorders.Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid role")
	}
	return internalorders.Actor{UserID: userID, Role: role}, nil
}
