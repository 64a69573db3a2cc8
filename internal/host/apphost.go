package host

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropbear/gravity/internal/bridge"
	"github.com/dropbear/gravity/internal/storage"
)

// FirmwareLink delivers payloads to the watch. done is called once with the
// outcome, possibly from another goroutine.
type FirmwareLink interface {
	Push(payload map[string]any, done func(error))
}

// MessageLog records outbound messages and their delivery outcome.
// Implemented by storage.Store.
type MessageLog interface {
	SaveMessage(m storage.Message) error
	UpdateMessageStatus(id, status, lastError string) error
}

// AppHost implements bridge.ConfigurationHost on top of a Loop.
type AppHost struct {
	loop     *Loop
	launcher Launcher
	link     FirmwareLink
	messages MessageLog // optional
	logger   *slog.Logger

	mu      sync.Mutex
	lastURL string
}

var _ bridge.ConfigurationHost = (*AppHost)(nil)

// NewAppHost wires the host API. messages may be nil to skip the message log.
func NewAppHost(loop *Loop, launcher Launcher, link FirmwareLink, messages MessageLog, logger *slog.Logger) *AppHost {
	if logger == nil {
		logger = slog.Default()
	}
	return &AppHost{
		loop:     loop,
		launcher: launcher,
		link:     link,
		messages: messages,
		logger:   logger,
	}
}

// OpenURL records url as the current configuration page and launches it.
func (h *AppHost) OpenURL(url string) {
	h.mu.Lock()
	h.lastURL = url
	h.mu.Unlock()

	if err := h.launcher.Launch(url); err != nil {
		h.logger.Error("opening configuration page", "url", url, "error", err)
	}
}

// LastURL returns the most recently opened configuration page, if any.
func (h *AppHost) LastURL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastURL
}

// SendAppMessage pushes payload over the link. The outcome callback is
// posted back onto the loop.
func (h *AppHost) SendAppMessage(payload bridge.Payload, onAck func(), onNack func(error)) {
	id := uuid.NewString()
	h.record(id, payload)

	h.link.Push(payload, func(err error) {
		h.settle(id, err)
		posted := h.loop.Post(func() {
			if err != nil {
				onNack(err)
				return
			}
			onAck()
		})
		if !posted {
			h.logger.Warn("dropping app message outcome, event loop stopped", "message_id", id)
		}
	})
}

func (h *AppHost) record(id string, payload bridge.Payload) {
	if h.messages == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encoding payload for message log", "message_id", id, "error", err)
		return
	}
	m := storage.Message{ID: id, CreatedAt: time.Now().UTC(), PayloadJSON: string(raw), Status: storage.StatusPending}
	if err := h.messages.SaveMessage(m); err != nil {
		h.logger.Warn("recording app message", "message_id", id, "error", err)
	}
}

func (h *AppHost) settle(id string, err error) {
	if h.messages == nil {
		return
	}
	status, lastError := storage.StatusAcked, ""
	if err != nil {
		status, lastError = storage.StatusNacked, err.Error()
	}
	if uerr := h.messages.UpdateMessageStatus(id, status, lastError); uerr != nil {
		h.logger.Warn("updating app message status", "message_id", id, "error", uerr)
	}
}
