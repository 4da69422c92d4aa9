package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessage(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"user_message","session_id":"s1","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage: %v", err)
	}
	if msg.Text != "hello" || msg.SessionID != "s1" {
		t.Fatalf("parsed %+v", msg)
	}
}

func TestParseClientMessageRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty text", `{"type":"user_message","text":"   "}`},
		{"not json", `hello`},
		{"unknown type", `{"type":"audio_chunk","text":"hi"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseClientMessage([]byte(tc.raw)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestParseClientMessageUnsupportedType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"assistant_reply","text":"hi"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
}
