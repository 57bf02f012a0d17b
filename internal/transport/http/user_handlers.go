package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-dm/internal/proto"
	"github.com/vovakirdan/wirechat-dm/internal/schema"
	"github.com/vovakirdan/wirechat-dm/internal/store"
)

// UserHandlers provides HTTP handlers for the user directory.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// ListUsers returns every registered user except the caller.
// GET /api/users
func (h *UserHandlers) ListUsers(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}

	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, directory(users, uid))
}

// UpdatePushToken stores the caller's push token.
// PUT /api/users/me/token
func (h *UserHandlers) UpdatePushToken(c *gin.Context) {
	var req proto.PushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: "invalid request body"})
		return
	}
	h.setPushToken(c, req.Token)
}

// ClearPushToken removes the caller's push token.
// DELETE /api/users/me/token
func (h *UserHandlers) ClearPushToken(c *gin.Context) {
	h.setPushToken(c, "")
}

func (h *UserHandlers) setPushToken(c *gin.Context, token string) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, proto.ErrorResponse{Error: "unauthorized"})
		return
	}

	if err := h.store.UpdatePushToken(c.Request.Context(), uid, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, proto.ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to update push token")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: "internal server error"})
		return
	}

	c.Status(http.StatusNoContent)
}

func directory(users []*store.User, exclude string) []schema.User {
	out := make([]schema.User, 0, len(users))
	for _, u := range users {
		if u.ID == exclude {
			continue
		}
		out = append(out, u.Public())
	}
	return out
}
