package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

type failingPayload struct{}

func (failingPayload) MarshalJSON() ([]byte, error) {
	return nil, errors.New("marshal failure")
}

func TestChangePayloadDefinedAndEmpty(t *testing.T) {
	undefined := UndefinedChangePayload()
	if undefined.Defined() {
		t.Fatalf("expected undefined payload to be not defined")
	}
	if !undefined.IsEmpty() {
		t.Fatalf("expected undefined payload to be empty")
	}
	if undefined.Raw() != nil {
		t.Fatalf("expected undefined payload to return nil raw bytes")
	}

	empty := NewChangePayload(nil)
	if !empty.Defined() {
		t.Fatalf("expected empty payload to be defined")
	}
	if !empty.IsEmpty() {
		t.Fatalf("expected empty payload to be empty")
	}
	if empty.Raw() != nil {
		t.Fatalf("expected empty payload to return nil raw bytes")
	}

	raw := json.RawMessage(`{"id":"123"}`)
	defined := NewChangePayload(raw)
	if !defined.Defined() {
		t.Fatalf("expected raw payload to be defined")
	}
	if defined.IsEmpty() {
		t.Fatalf("expected raw payload to be non-empty")
	}
	if got := defined.Raw(); string(got) != string(raw) {
		t.Fatalf("expected raw payload %s, got %s", raw, got)
	}
}

func TestChangePayloadRawIsCloned(t *testing.T) {
	raw := json.RawMessage(`{"id":"cloned"}`)
	payload := NewChangePayload(raw)
	raw[2] = 'X'

	first := payload.Raw()
	first[2] = 'Y'
	second := payload.Raw()
	if string(first) == string(second) {
		t.Fatalf("expected raw payload to be cloned per call")
	}
	if string(second) != `{"id":"cloned"}` {
		t.Fatalf("expected stored payload to remain unchanged, got %s", second)
	}
}

func TestNewChangePayloadFromValue(t *testing.T) {
	payload, err := NewChangePayloadFromValue(map[string]string{"id": "123"})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if !payload.Defined() {
		t.Fatalf("expected payload to be defined")
	}
	if payload.IsEmpty() {
		t.Fatalf("expected payload to be non-empty")
	}
	var out map[string]string
	if err := json.Unmarshal(payload.Raw(), &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if out["id"] != "123" {
		t.Fatalf("expected id 123, got %s", out["id"])
	}

	if _, err := NewChangePayloadFromValue(failingPayload{}); err == nil {
		t.Fatalf("expected marshal error for failing payload")
	}
}

func TestChangePayloadJSONRoundTrip(t *testing.T) {
	type envelope struct {
		Payload ChangePayload `json:"payload"`
	}
	in := envelope{Payload: NewChangePayload(json.RawMessage(`{"id":"s-1","name":"Nimal"}`))}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"payload":{"id":"s-1","name":"Nimal"}}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var out envelope
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var row map[string]string
	if err := out.Payload.Decode(&row); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row["name"] != "Nimal" {
		t.Fatalf("expected name to survive round trip, got %v", row)
	}
}

func TestChangePayloadNullEncoding(t *testing.T) {
	data, err := json.Marshal(UndefinedChangePayload())
	if err != nil || string(data) != "null" {
		t.Fatalf("expected null encoding, got %s (%v)", data, err)
	}
	var p ChangePayload
	if err := json.Unmarshal([]byte("null"), &p); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !p.Defined() || !p.IsEmpty() {
		t.Fatalf("expected defined empty payload after null")
	}
}
