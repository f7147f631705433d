package v1

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValidateInbound(t *testing.T) {
	ok := Envelope{V: Version, Type: TypePing, ID: "1", TS: time.Now(), Payload: json.RawMessage(`{}`)}
	if err := ok.ValidateInbound(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Envelope{
		{V: 2, Type: TypePing, ID: "1"},
		{V: Version, Type: "", ID: "1"},
		{V: Version, Type: TypeSessionRevoked, ID: "1"},
		{V: Version, Type: TypePing},
	}
	for _, e := range bad {
		if err := e.ValidateInbound(); err == nil {
			t.Fatalf("expected error for %+v", e)
		}
	}
}

func TestEnvelopeWireShape(t *testing.T) {
	p, _ := json.Marshal(SessionRevokedPayload{Reason: "logout", Count: 1})
	b, err := json.Marshal(Envelope{V: Version, Type: TypeSessionRevoked, ID: "x", TS: time.Unix(0, 0).UTC(), Payload: p})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"v":1,"type":"session.revoked","id":"x","ts":"1970-01-01T00:00:00Z","payload":{"reason":"logout","count":1}}`
	if string(b) != want {
		t.Fatalf("got %s", b)
	}
}
