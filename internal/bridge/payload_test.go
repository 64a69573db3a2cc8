package bridge

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := []Payload{
		{"facestyle": "analog"},
		{"facestyle": "digital", "seconds": true, "offset": 25.0},
		{"facestyle": "a b+c/d?e=f&g%h", "tags": []any{"x", 1.0}},
		{"facestyle": "Schwerkraft ünd ∞", "nested": map[string]any{"k": nil}},
		{},
	}
	for _, p := range payloads {
		enc, err := EncodeResponse(p)
		if err != nil {
			t.Fatalf("EncodeResponse(%v): %v", p, err)
		}
		got, err := DecodeResponse(enc)
		if err != nil {
			t.Fatalf("DecodeResponse(%q): %v", enc, err)
		}
		if !reflect.DeepEqual(got, p) {
			t.Errorf("round trip = %v, want %v", got, p)
		}
	}
}

func TestEncodeResponse_SpacesAsPercent20(t *testing.T) {
	enc, err := EncodeResponse(Payload{"facestyle": "big hands"})
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	want := "%7B%22facestyle%22%3A%22big%20hands%22%7D"
	if enc != want {
		t.Errorf("EncodeResponse = %q, want %q", enc, want)
	}
}

func TestDecodeResponse_KeepsPlus(t *testing.T) {
	p, err := DecodeResponse("%7B%22facestyle%22%3A%22a+b%22%7D")
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if p["facestyle"] != "a+b" {
		t.Errorf("facestyle = %q, want %q", p["facestyle"], "a+b")
	}
}

func TestDecodeResponse_Unencoded(t *testing.T) {
	p, err := DecodeResponse(`{"facestyle":"analog"}`)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if p["facestyle"] != "analog" {
		t.Errorf("facestyle = %v", p["facestyle"])
	}
}

func TestParseCloseURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "pebblejs://close#%7B%22facestyle%22%3A%22analog%22%7D", want: "%7B%22facestyle%22%3A%22analog%22%7D"},
		{url: "pebblejs://close/#%7B%7D", want: "%7B%7D"},
		{url: "pebblejs://close#", want: ""},
		{url: "pebblejs://close", want: ""},
		{url: "http://example.com/close#x", wantErr: true},
		{url: "pebblejs://closed", wantErr: true},
	}
	for _, tt := range tests {
		ev, err := ParseCloseURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseCloseURL(%q) expected error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCloseURL(%q): %v", tt.url, err)
			continue
		}
		if ev.Response != tt.want {
			t.Errorf("ParseCloseURL(%q) = %q, want %q", tt.url, ev.Response, tt.want)
		}
	}
}

func TestStorageString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"analog", "analog"},
		{2.0, "2"},
		{1.5, "1.5"},
		{-0.25, "-0.25"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{-2.5e-8, "-2.5e-8"},
		{0.000001, "0.000001"},
		{0.0, "0"},
		{true, "true"},
		{nil, "null"},
		{[]any{1.0, "a"}, `[1,"a"]`},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tt := range tests {
		if got := StorageString(tt.in); got != tt.want {
			t.Errorf("StorageString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
