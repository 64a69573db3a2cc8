package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// ConfigURL is the settings page the watch face ships with.
const ConfigURL = "http://hardy.dropbear.id.au/pebble/Gravity/config/2-0.html"

// FaceStyleKey is both the payload field and the local storage key the bridge persists.
const FaceStyleKey = "facestyle"

// Host event names the bridge subscribes to.
const (
	EventShowConfiguration = "showConfiguration"
	EventWebviewClosed     = "webviewclosed"
)

// Event is the object the host passes to event listeners. Response carries the
// still-encoded settings returned by the webview; it is empty when the page
// was dismissed without saving.
type Event struct {
	Response string
}

// ConfigurationHost is the slice of the host API the bridge drives.
type ConfigurationHost interface {
	// OpenURL shows url in a webview. Failures are the host's to report.
	OpenURL(url string)
	// SendAppMessage transmits payload to the watch without blocking. Exactly
	// one of onAck or onNack is called later, on the host's event loop, unless
	// the watch never answers.
	SendAppMessage(payload Payload, onAck func(), onNack func(error))
}

// PreferenceStore is the host's persistent key-value store.
type PreferenceStore interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
}

// EventRegistrar subscribes listeners to named host events.
type EventRegistrar interface {
	AddEventListener(name string, fn func(Event) error)
}

// Bridge relays settings from the configuration page to the watch face.
// It holds no per-session state; every event is handled independently.
type Bridge struct {
	host   ConfigurationHost
	store  PreferenceStore
	logger *slog.Logger
}

// New creates a Bridge. A nil logger falls back to slog.Default().
func New(host ConfigurationHost, store PreferenceStore, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{host: host, store: store, logger: logger}
}

// Register subscribes the bridge's handlers to the host events.
func (b *Bridge) Register(r EventRegistrar) {
	r.AddEventListener(EventShowConfiguration, func(Event) error {
		b.ShowConfiguration()
		return nil
	})
	r.AddEventListener(EventWebviewClosed, b.WebviewClosed)
}

// ShowConfiguration asks the host to open the settings page.
func (b *Bridge) ShowConfiguration() {
	b.logger.Info("showing configuration")
	b.host.OpenURL(ConfigURL)
}

// WebviewClosed handles the settings page closing. A non-empty response is
// decoded, its facestyle persisted, and the whole payload sent to the watch.
// Malformed responses return an error wrapping ErrMalformedResponse before
// anything is written or sent.
func (b *Bridge) WebviewClosed(ev Event) error {
	b.logger.Info("configuration closed")

	if ev.Response == "" {
		b.logger.Info("no options received")
		return nil
	}

	params, err := DecodeResponse(ev.Response)
	if err != nil {
		return err
	}
	if b.logger.Enabled(context.Background(), slog.LevelDebug) {
		if raw, err := json.Marshal(params); err == nil {
			b.logger.Debug("options received", "payload", string(raw))
		}
	}

	if v, ok := params[FaceStyleKey]; ok {
		if err := b.store.SetItem(FaceStyleKey, StorageString(v)); err != nil {
			return fmt.Errorf("storing %s: %w", FaceStyleKey, err)
		}
	} else {
		b.logger.Warn("options carry no facestyle, keeping stored value")
	}

	b.host.SendAppMessage(params, b.appMessageAck, b.appMessageNack)
	return nil
}

// FaceStyle returns the last persisted face style.
func (b *Bridge) FaceStyle() (string, error) {
	return b.store.GetItem(FaceStyleKey)
}

func (b *Bridge) appMessageAck() {
	b.logger.Info("options sent to Pebble successfully")
}

func (b *Bridge) appMessageNack(err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	b.logger.Warn("options not sent to Pebble: " + err.Error())
}
