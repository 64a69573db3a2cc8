package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformedResponse is wrapped by every decode or parse failure of a webview response.
var ErrMalformedResponse = errors.New("malformed configuration response")

// closeURLPrefix is the URL a settings page navigates to when it is done.
const closeURLPrefix = "pebblejs://close"

// Payload is the settings mapping produced by the configuration page.
type Payload map[string]any

// DecodeResponse percent-decodes response and parses it as a JSON object.
// Only %XX sequences are decoded; '+' is kept as is.
func DecodeResponse(response string) (Payload, error) {
	raw, err := url.PathUnescape(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if !utf8.ValidString(raw) {
		return nil, fmt.Errorf("%w: percent-encoding is not valid UTF-8", ErrMalformedResponse)
	}

	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedResponse)
	}
	return p, nil
}

// EncodeResponse produces the string a settings page hands back for p:
// JSON, then percent-encoded with spaces as %20.
func EncodeResponse(p Payload) (string, error) {
	if p == nil {
		p = Payload{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return strings.ReplaceAll(url.QueryEscape(string(raw)), "+", "%20"), nil
}

// ParseCloseURL extracts the event from a pebblejs://close#<response> URL.
// The fragment is returned still encoded.
func ParseCloseURL(rawURL string) (Event, error) {
	rest, ok := strings.CutPrefix(rawURL, closeURLPrefix)
	if !ok {
		return Event{}, fmt.Errorf("not a close URL: %q", rawURL)
	}
	rest = strings.TrimPrefix(rest, "/")
	switch {
	case rest == "":
		return Event{}, nil
	case rest[0] == '#':
		return Event{Response: rest[1:]}, nil
	default:
		return Event{}, fmt.Errorf("unexpected close URL suffix %q", rest)
	}
}

// StorageString renders a decoded JSON value the way a string-only
// key-value store receives it.
func StorageString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if abs := math.Abs(val); abs >= 1e21 || (abs < 1e-6 && val != 0) {
			return trimExponent(strconv.FormatFloat(val, 'g', -1, 64))
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// trimExponent drops the zero padding Go puts on two-digit exponents,
// so 1e-07 becomes 1e-7.
func trimExponent(s string) string {
	i := strings.IndexByte(s, 'e')
	if i < 0 || i+2 >= len(s) {
		return s
	}
	mant, sign, digits := s[:i+1], s[i+1:i+2], strings.TrimLeft(s[i+2:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + sign + digits
}
