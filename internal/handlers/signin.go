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

//go:generate mockgen -source=signin.go -destination=mock_signin.go -package=handlers

// SignInner defines the interface that the sign-in service must implement.
type SignInner interface {
	SignIn(ctx context.Context, username, password string) (*models.User, error)
}

// NewSignInHandler returns an HTTP handler for user sign-in.
// @Summary User sign-in
// @Description Verifies the password and returns the user. Unknown usernames and wrong passwords share code 1.
// @Tags auth
// @Accept json
// @Produce json
// @Param signInRequest body models.SignInRequest true "Sign-in request"
// @Success 200 {object} models.SignInResponse "code 0 success, 1 invalid credentials, 4 persistence failure"
// @Failure 400 {object} models.SignInResponse "code 3 missing required field"
// @Router /signIn [post]
func NewSignInHandler(svc SignInner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SignInRequest

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, models.SignInResponse{Code: models.CodeMissingField})
			return
		}

		user, err := svc.SignIn(r.Context(), req.Username, req.Password)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrValidation):
				writeJSON(w, http.StatusBadRequest, models.SignInResponse{Code: models.CodeMissingField})
			case errors.Is(err, services.ErrInvalidCredentials):
				writeJSON(w, http.StatusOK, models.SignInResponse{Code: models.CodeInvalidCredentials})
			default:
				logger.Log.Errorw("sign-in failed", "request_id", middlewares.RequestIDFromContext(r.Context()), "err", err)
				writeJSON(w, http.StatusOK, models.SignInResponse{Code: models.CodePersistence})
			}
			return
		}

		writeJSON(w, http.StatusOK, models.SignInResponse{Code: models.CodeOK, User: user})
	}
}
