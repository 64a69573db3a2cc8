package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropbear/gravity/internal/bridge"
	"github.com/dropbear/gravity/internal/host"
	"github.com/dropbear/gravity/internal/storage"
)

type WebviewClosedRequest struct {
	Response string `json:"response"`
	URL      string `json:"url"`
}

type preferenceView struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

type messageView struct {
	ID        string          `json:"id"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Status    string          `json:"status"`
	LastError string          `json:"last_error,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func newPreferenceView(it storage.Item) preferenceView {
	return preferenceView{Key: it.Key, Value: it.Value, UpdatedAt: it.UpdatedAt.Format(time.RFC3339)}
}

func newMessageView(m storage.Message) messageView {
	payload := json.RawMessage(m.PayloadJSON)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	return messageView{
		ID:        m.ID,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
		UpdatedAt: m.UpdatedAt.Format(time.RFC3339),
		Status:    m.Status,
		LastError: m.LastError,
		Payload:   payload,
	}
}

// dispatchFailed maps a handler or loop error to an HTTP error response.
func dispatchFailed(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrMalformedResponse):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, host.ErrLoopStopped):
		httpError(w, http.StatusServiceUnavailable, "api_error", "service is shutting down")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "event handler failed: %v", err)
	}
}

func handleShowConfiguration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Events.DispatchWait(r.Context(), bridge.EventShowConfiguration, bridge.Event{}); err != nil {
			dispatchFailed(w, err)
			return
		}
		writeJSON(w, map[string]string{
			"status": "opened",
			"url":    bridge.ConfigURL,
		})
	}
}

func handleWebviewClosed(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req WebviewClosedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		ev := bridge.Event{Response: req.Response}
		if req.URL != "" {
			if req.Response != "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "set only one of response or url")
				return
			}
			parsed, err := bridge.ParseCloseURL(req.URL)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			ev = parsed
		}

		if err := deps.Events.DispatchWait(r.Context(), bridge.EventWebviewClosed, ev); err != nil {
			dispatchFailed(w, err)
			return
		}

		status := "accepted"
		if ev.Response == "" {
			status = "no_options"
		}
		writeJSON(w, map[string]string{"status": status})
	}
}

// handleCloseLanding receives a settings page that finished in a regular
// browser. The response parameter is passed on still encoded, exactly as the
// page produced it.
func handleCloseLanding(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev := bridge.Event{Response: rawQueryValue(r.URL.RawQuery, "response")}

		if err := deps.Events.DispatchWait(r.Context(), bridge.EventWebviewClosed, ev); err != nil {
			deps.Logger.Warn("configuration close rejected", "error", err)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, closePage("The watch settings could not be read. Please try again."))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if ev.Response == "" {
			fmt.Fprint(w, closePage("No settings were received, so nothing was sent to your Pebble."))
			return
		}
		fmt.Fprint(w, closePage("Settings sent to your Pebble. You can close this window."))
	}
}

// rawQueryValue returns the undecoded value of key in a raw query string.
func rawQueryValue(rawQuery, key string) string {
	for _, part := range strings.Split(rawQuery, "&") {
		k, v, _ := strings.Cut(part, "=")
		if k == key {
			return v
		}
	}
	return ""
}

func closePage(msg string) string {
	return "<!doctype html><html><head><title>Gravity</title></head><body><p>" + msg + "</p></body></html>"
}

func handleListPreferences(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := deps.Store.AllItems()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list preferences: %v", err)
			return
		}

		views := make([]preferenceView, 0, len(items))
		for _, it := range items {
			views = append(views, newPreferenceView(it))
		}
		writeJSON(w, views)
	}
}

func handleGetPreference(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		value, err := deps.Store.GetItem(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no value stored for %q", key)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get preference: %v", err)
			return
		}

		writeJSON(w, map[string]string{"key": key, "value": value})
	}
}

func handleListMessages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		msgs, err := deps.Store.RecentMessages(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list messages: %v", err)
			return
		}

		views := make([]messageView, 0, len(msgs))
		for _, m := range msgs {
			views = append(views, newMessageView(m))
		}
		writeJSON(w, views)
	}
}

func handleGetMessage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		m, err := deps.Store.GetMessage(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get message: %v", err)
			return
		}

		writeJSON(w, newMessageView(m))
	}
}

type StatusResponse struct {
	WatchConnected bool   `json:"watch_connected"`
	LastURL        string `json:"last_url,omitempty"`
	FaceStyle      string `json:"facestyle,omitempty"`
	Migrations     []int  `json:"migrations"`
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp StatusResponse
		if deps.Firmware != nil {
			resp.WatchConnected = deps.Firmware.Connected()
		}
		if deps.Host != nil {
			resp.LastURL = deps.Host.LastURL()
		}

		fs, err := deps.Store.GetItem(bridge.FaceStyleKey)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read facestyle: %v", err)
			return
		}
		resp.FaceStyle = fs

		resp.Migrations, err = deps.Store.AppliedMigrations()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read migrations: %v", err)
			return
		}

		writeJSON(w, resp)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
