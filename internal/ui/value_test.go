package ui

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestValueJSONTags(t *testing.T) {
	cases := []struct {
		in   Value
		want string
	}{
		{String("hi"), `{"t":"s","v":"hi"}`},
		{Int(3), `{"t":"n","v":3}`},
		{Bool(true), `{"t":"b","v":true}`},
		{Color("#0AF"), `{"t":"c","v":"#0af"}`},
		{Enum("center"), `{"t":"e","v":"center"}`},
	}
	for _, tc := range cases {
		got, err := json.Marshal(tc.in)
		if err != nil {
			t.Fatalf("Marshal(%v) error = %v", tc.in, err)
		}
		if string(got) != tc.want {
			t.Fatalf("Marshal(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestValueUnmarshalAcceptsBareScalars(t *testing.T) {
	var payload map[string]Value
	if err := json.Unmarshal([]byte(`{"offset":120.5,"text":"abc","on":true,"c":{"t":"c","v":"#FFFFFF"}}`), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if n, ok := payload["offset"].Num(); !ok || n != 120.5 {
		t.Fatalf("offset = %v", payload["offset"])
	}
	if s, ok := payload["text"].Str(); !ok || s != "abc" {
		t.Fatalf("text = %v", payload["text"])
	}
	if b, ok := payload["on"].Truth(); !ok || !b {
		t.Fatalf("on = %v", payload["on"])
	}
	if payload["c"] != Color("#ffffff") {
		t.Fatalf("c = %v", payload["c"])
	}
}

func TestValueRejectsBadInput(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"t":"c","v":"blue"}`), &v); err == nil {
		t.Fatalf("expected error for invalid color")
	}
	if err := json.Unmarshal([]byte(`{"t":"x","v":1}`), &v); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
	if err := json.Unmarshal([]byte(`[1]`), &v); err == nil {
		t.Fatalf("expected error for array")
	}
	if _, err := json.Marshal(Value{}); err == nil {
		t.Fatalf("expected error marshaling zero value")
	}

	tree := NewTree()
	id, err := tree.Create(KindText, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, n := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if err := tree.SetProperty(id, "width", Number(n)); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("SetProperty(%v) = %v, want ErrInvalidValue", n, err)
		}
		if _, err := tree.Create(KindText, map[string]Value{"width": Number(n)}); !errors.Is(err, ErrInvalidValue) {
			t.Fatalf("Create with %v = %v, want ErrInvalidValue", n, err)
		}
	}
}
