package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sbilibin2017/chime-auth/internal/logger"
	"github.com/sbilibin2017/chime-auth/internal/middlewares"
	"github.com/sbilibin2017/chime-auth/internal/models"
	"github.com/sbilibin2017/chime-auth/internal/services"
)

//go:generate mockgen -source=register.go -destination=mock_register.go -package=handlers

// Registerer defines the interface that the service must implement.
type Registerer interface {
	Register(ctx context.Context, username, first, last, password string) (*models.User, error)
}

// NewRegisterHandler returns an HTTP handler for user registration.
// @Summary Register a new user
// @Description Creates a credential and its profile atomically. The result is reported in the code field.
// @Tags auth
// @Accept json
// @Produce json
// @Param registerRequest body models.RegisterRequest true "User registration request"
// @Success 200 {object} models.RegisterResponse "code 0 success, 2 username taken, 4 persistence failure"
// @Failure 400 {object} models.RegisterResponse "code 3 missing required field"
// @Router /register [post]
func NewRegisterHandler(svc Registerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, models.RegisterResponse{Code: models.CodeMissingField})
			return
		}

		user, err := svc.Register(r.Context(), req.Username, req.First, req.Last, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrValidation):
				writeJSON(w, http.StatusBadRequest, models.RegisterResponse{Code: models.CodeMissingField})
			case errors.Is(err, services.ErrUsernameTaken):
				writeJSON(w, http.StatusOK, models.RegisterResponse{Code: models.CodeUsernameTaken})
			default:
				logger.Log.Errorw("registration failed", "request_id", middlewares.RequestIDFromContext(r.Context()), "err", err)
				writeJSON(w, http.StatusOK, models.RegisterResponse{Code: models.CodePersistence})
			}
			return
		}

		writeJSON(w, http.StatusOK, models.RegisterResponse{Code: models.CodeOK, User: user})
	}
}
