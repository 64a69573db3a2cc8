package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropbear/gravity/internal/bridge"
	"github.com/dropbear/gravity/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// EventDispatcher hands an event to the host loop and waits for its handlers.
type EventDispatcher interface {
	DispatchWait(ctx context.Context, name string, ev bridge.Event) error
}

// Firmware is the watch-facing side of the service.
type Firmware interface {
	Handler() http.Handler
	Connected() bool
}

// HostStatus reports what the host last did.
type HostStatus interface {
	LastURL() string
}

type AppDeps struct {
	Store    *storage.Store
	Events   EventDispatcher
	Host     HostStatus // optional
	Firmware Firmware   // optional; if nil, /firmware is not served
	Token    string
	Logger   *slog.Logger
}

// NewRouter returns the HTTP surface of the companion service. /health, the
// watch socket and the browser close landing page are open; everything else
// requires the bearer token.
func NewRouter(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	if deps.Firmware != nil {
		r.Method(http.MethodGet, "/firmware", deps.Firmware.Handler())
	}
	r.Get("/webview/close", handleCloseLanding(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/events/show-configuration", handleShowConfiguration(deps))
		r.Post("/events/webview-closed", handleWebviewClosed(deps))
		r.Get("/preferences", handleListPreferences(deps))
		r.Get("/preferences/{key}", handleGetPreference(deps))
		r.Get("/messages", handleListMessages(deps))
		r.Get("/messages/{id}", handleGetMessage(deps))
		r.Get("/status", handleStatus(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
