package handlers

import (
	"net/http"
	"time"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
	apierrors "github.com/kevin-twai/eatlyze-backend/internal/transport/http/errors"
	"github.com/kevin-twai/eatlyze-backend/internal/transport/http/middleware"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type authResponse struct {
	UserID string        `json:"user_id"`
	Tokens tokenResponse `json:"tokens"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type logoutAllResponse struct {
	TokenVersion int64 `json:"token_version"`
}

func tokensOut(pair *models.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		TokenType:       "bearer",
		AccessExpiresAt: pair.AccessExpiresAt,
	}
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	pair, userID, err := h.Auth.RegisterUser(r.Context(), in.Email, in.Name, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		UserID: userID.String(),
		Tokens: tokensOut(pair),
	})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	pair, userID, err := h.Auth.LoginUser(r.Context(), in.Email, in.Password, h.clientIP(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID: userID.String(),
		Tokens: tokensOut(pair),
	})
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil || in.RefreshToken == "" {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	pair, userID, err := h.Auth.RefreshTokens(r.Context(), in.RefreshToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID: userID.String(),
		Tokens: tokensOut(pair),
	})
}

// Logout отзывает предъявленный access и, если он передан в теле,
// refresh-токен. Тело запроса опционально; операция идемпотентна.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	// Пустое тело допустимо, ошибки декодирования не фатальны:
	// access из контекста уже достаточно для отзыва.
	_ = decodeStrict(r, &in)

	accessToken := middleware.AccessTokenFrom(r.Context())
	if err := h.Auth.Logout(r.Context(), accessToken, in.RefreshToken); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll — «выход со всех устройств» текущего пользователя.
func (h *Handlers) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrInternal)
		return
	}

	version, err := h.Auth.LogoutAll(r.Context(), user.ID, middleware.AccessTokenFrom(r.Context()))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, logoutAllResponse{TokenVersion: version})
}

// Me возвращает профиль аутентифицированного пользователя.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrInternal)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		ID:        user.ID.String(),
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
	})
}
