package appmessage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEncodePayload_Wire(t *testing.T) {
	d, err := EncodePayload(map[string]any{"facestyle": "analog"}, DefaultManifest())
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	got, err := d.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	want := []byte{
		1,          // count
		0, 0, 0, 0, // key 0
		1,    // cstring
		7, 0, // length incl. NUL
		'a', 'n', 'a', 'l', 'o', 'g', 0,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("wire = %v, want %v", got, want)
	}
}

func TestEncodePayload_Types(t *testing.T) {
	m := Manifest{UUID: DefaultAppUUID, AppKeys: map[string]uint32{"facestyle": 0, "invert": 1, "offset": 2, "pips": 3}}
	d, err := EncodePayload(map[string]any{
		"facestyle": "analog",
		"invert":    true,
		"offset":    -25.0,
		"pips":      []any{1.0, 2.0, 255.0},
		"7":         "raw",
	}, m)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	if len(d) != 5 {
		t.Fatalf("got %d tuples, want 5", len(d))
	}
	for i := 1; i < len(d); i++ {
		if d[i].Key <= d[i-1].Key {
			t.Fatalf("tuples not ordered by key: %v", d)
		}
	}
	if d[1].Type != TypeInt || !bytes.Equal(d[1].Value, []byte{1, 0, 0, 0}) {
		t.Errorf("invert tuple = %+v", d[1])
	}
	if d[2].Type != TypeInt || !bytes.Equal(d[2].Value, []byte{0xE7, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("offset tuple = %+v", d[2])
	}
	if d[3].Type != TypeByteArray || !bytes.Equal(d[3].Value, []byte{1, 2, 255}) {
		t.Errorf("pips tuple = %+v", d[3])
	}
	if d[4].Key != 7 || d[4].Type != TypeCString {
		t.Errorf("numeric key tuple = %+v", d[4])
	}
}

func TestEncodePayload_Errors(t *testing.T) {
	m := DefaultManifest()
	if _, err := EncodePayload(map[string]any{"colour": "red"}, m); err == nil {
		t.Error("expected error for unknown key")
	}
	cases := []any{1.5, map[string]any{"a": 1.0}, []any{"x"}, []any{256.0}, nil, 1e12}
	for _, v := range cases {
		_, err := EncodePayload(map[string]any{"facestyle": v}, m)
		if !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("EncodePayload(%v) error = %v, want ErrUnsupportedValue", v, err)
		}
	}
}

func TestDictionaryRoundTrip(t *testing.T) {
	m := Manifest{UUID: DefaultAppUUID, AppKeys: map[string]uint32{"facestyle": 0, "seconds": 1, "pips": 2}}
	in := map[string]any{"facestyle": "digital", "seconds": 1.0, "pips": []any{4.0, 8.0}}

	d, err := EncodePayload(in, m)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	raw, err := d.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	back, n, err := UnmarshalDictionary(raw)
	if err != nil {
		t.Fatalf("UnmarshalDictionary: %v", err)
	}
	if n != len(raw) {
		t.Errorf("consumed %d bytes, want %d", n, len(raw))
	}
	out, err := DecodePayload(back, m)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
}

func TestUnmarshalDictionary_Truncated(t *testing.T) {
	inputs := [][]byte{
		{},
		{1, 0, 0},
		{1, 0, 0, 0, 0, 1, 5, 0, 'a'},
	}
	for _, in := range inputs {
		if _, _, err := UnmarshalDictionary(in); err == nil {
			t.Errorf("UnmarshalDictionary(%v) expected error", in)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	m := DefaultManifest()
	id, err := m.AppUUID()
	if err != nil {
		t.Fatalf("AppUUID: %v", err)
	}
	d, err := EncodePayload(map[string]any{"facestyle": "analog"}, m)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	raw, err := Frame{Command: CmdPush, TransactionID: 9, UUID: id, Dict: d}.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	f, err := ParseFrame(raw)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Command != CmdPush || f.TransactionID != 9 || f.UUID != id {
		t.Errorf("frame header = %+v", f)
	}
	if !reflect.DeepEqual(f.Dict, d) {
		t.Errorf("dict = %v, want %v", f.Dict, d)
	}

	if _, err := ParseFrame(append(raw, 0)); err == nil {
		t.Error("expected error for trailing bytes")
	}
	if _, err := ParseFrame([]byte{0x42, 1}); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	content := `app_keys:
  facestyle: 0
  seconds: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.UUID != DefaultAppUUID {
		t.Errorf("UUID = %q, want default", m.UUID)
	}
	if k, err := m.Key("seconds"); err != nil || k != 1 {
		t.Errorf("Key(seconds) = %d, %v", k, err)
	}
	if m.Name(1) != "seconds" {
		t.Errorf("Name(1) = %q", m.Name(1))
	}
	if m.Name(42) != "42" {
		t.Errorf("Name(42) = %q", m.Name(42))
	}
}

func TestLoadManifest_InvalidUUID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.yaml")
	if err := os.WriteFile(path, []byte("uuid: not-a-uuid\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for invalid uuid")
	}
}

func TestLoadManifest_EmptyPath(t *testing.T) {
	m, err := LoadManifest("")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if !reflect.DeepEqual(m, DefaultManifest()) {
		t.Errorf("manifest = %+v, want default", m)
	}
}
