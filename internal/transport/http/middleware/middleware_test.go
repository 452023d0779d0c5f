package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kevin-twai/eatlyze-backend/internal/models"
	"github.com/kevin-twai/eatlyze-backend/internal/service"
)

// capHandler — тестовый slog.Handler: аккумулирует базовые attrs из
// Logger.With(...) и attrs каждой записи, без реального I/O.
type capHandler struct {
	base    []slog.Attr
	lastMsg string
	attrs   map[string]any
	byMsg   map[string]map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)

	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}

	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.attrs = out

	if h.byMsg == nil {
		h.byMsg = make(map[string]map[string]any)
	}
	h.byMsg[r.Message] = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) > 0 {
		h.base = append(h.base, attrs...)
	}

	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errEnvelope struct {
	Error apiError `json:"error"`
}

// fakeAuth — управляемый Authenticator для тестов мидлваров.
type fakeAuth struct {
	user *models.User
	err  error
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}

	return f.user, nil
}

func (f *fakeAuth) AuthenticateOptional(_ context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	if f.err != nil {
		if service.IsAuthFailure(f.err) {
			return nil, nil
		}
		return nil, f.err
	}

	return f.user, nil
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string

	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mk("outer"), mk("inner"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRequestID_GeneratesAndEchoes(t *testing.T) {
	t.Parallel()

	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get("X-Request-Id")
		require.NotEmpty(t, id)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
	})

	t.Run("echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "client-id")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, "client-id", rec.Header().Get("X-Request-Id"))
	})
}

func TestLogging_AccessRecord(t *testing.T) {
	t.Parallel()

	cap := &capHandler{}
	logger := slog.New(cap)

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.Header.Set("X-Request-Id", "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, 1, cap.count)
	require.Equal(t, "http", cap.lastMsg)
	require.Equal(t, "req-42", cap.attrs["request_id"])
	require.Equal(t, "POST", cap.attrs["method"])
	require.Equal(t, "/auth/login", cap.attrs["path"])
	require.EqualValues(t, http.StatusTeapot, cap.attrs["status"])
	require.EqualValues(t, 2, cap.attrs["bytes"])
}

func TestRecover_PanicTo500(t *testing.T) {
	t.Parallel()

	h := Recover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "internal", env.Error.Code)
	require.NotContains(t, rec.Body.String(), "boom", "детали паники не утекают")
}

// TestRecover_PanicLoggedWithRequestID — в боевой цепочке Recover стоит
// внутри Logging, поэтому запись о панике уходит уже обогащённым
// request-scoped логгером и несёт request_id.
func TestRecover_PanicLoggedWithRequestID(t *testing.T) {
	t.Parallel()

	cap := &capHandler{}
	logger := slog.New(cap)

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), RequestID(), Logging(logger), Recover())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("X-Request-Id", "req-panic-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	panicRec, ok := cap.byMsg["panic"]
	require.True(t, ok, "паника должна быть залогирована")
	require.Equal(t, "req-panic-7", panicRec["request_id"])

	// Access-лог тоже записан и видит статус 500.
	accessRec, ok := cap.byMsg["http"]
	require.True(t, ok)
	require.EqualValues(t, http.StatusInternalServerError, accessRec["status"])
}

func TestTimeout_SetsDeadline(t *testing.T) {
	t.Parallel()

	var hadDeadline bool
	h := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, hadDeadline)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"ok", "Bearer tok-1", "tok-1"},
		{"extra_spaces", "Bearer   tok-2  ", "tok-2"},
		{"missing", "", ""},
		{"wrong_scheme", "Basic dXNlcg==", ""},
		{"bare_prefix", "Bearer ", ""},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			require.Equal(t, tc.want, BearerToken(req))
		})
	}
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Email: "user@example.com", TokenVersion: 1}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := UserFrom(r.Context())
		require.True(t, ok)
		require.Equal(t, user.ID, got.ID)
		require.Equal(t, "tok", AccessTokenFrom(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	t.Run("ok", func(t *testing.T) {
		h := RequireAuth(&fakeAuth{user: user})(next)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer tok")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no_token_401", func(t *testing.T) {
		h := RequireAuth(&fakeAuth{user: user})(next)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("auth_failure_401", func(t *testing.T) {
		h := RequireAuth(&fakeAuth{err: service.ErrTokenRevoked})(next)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer tok")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("store_failure_503", func(t *testing.T) {
		h := RequireAuth(&fakeAuth{err: errors.New("pg: down")})(next)

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer tok")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Email: "user@example.com", TokenVersion: 1}

	var gotUser *models.User
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotOK = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("anonymous_without_token", func(t *testing.T) {
		h := OptionalAuth(&fakeAuth{user: user})(next)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, gotOK)
	})

	t.Run("anonymous_on_bad_token", func(t *testing.T) {
		h := OptionalAuth(&fakeAuth{err: service.ErrTokenExpired})(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer expired")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, gotOK)
	})

	t.Run("authenticated_with_token", func(t *testing.T) {
		h := OptionalAuth(&fakeAuth{user: user})(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, gotOK)
		require.Equal(t, user.ID, gotUser.ID)
	})

	t.Run("store_failure_503", func(t *testing.T) {
		h := OptionalAuth(&fakeAuth{err: errors.New("pg: down")})(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
