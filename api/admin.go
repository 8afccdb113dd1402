package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xraph/evolution/queue"
)

// AdminOption configures an AdminHandler.
type AdminOption func(*AdminHandler)

// WithAdminToken requires "Authorization: Bearer <token>" on every admin
// request. An empty token leaves the routes open.
func WithAdminToken(token string) AdminOption {
	return func(h *AdminHandler) { h.token = token }
}

// WithAdminLogger sets the logger.
func WithAdminLogger(l *slog.Logger) AdminOption {
	return func(h *AdminHandler) { h.logger = l }
}

// AdminHandler serves task inspection and replay. It is kept off the
// webhook Handler so the public listener never exposes task payloads.
type AdminHandler struct {
	store  queue.Store
	token  string
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewAdminHandler creates an admin handler over store.
func NewAdminHandler(store queue.Store, opts ...AdminOption) *AdminHandler {
	h := &AdminHandler{
		store:  store,
		logger: slog.Default(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("GET /stats", h.getStats)
	h.mux.HandleFunc("GET /tasks/dead", h.listDead)
	h.mux.HandleFunc("GET /tasks/{id}", h.getTask)
	h.mux.HandleFunc("POST /tasks/{id}/replay", h.replayTask)
	return h
}

// ServeHTTP implements http.Handler.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withMiddleware(h.logger, h.authenticate(h.mux)).ServeHTTP(w, r)
}

func (h *AdminHandler) authenticate(next http.Handler) http.Handler {
	if h.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="evolution-admin"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
