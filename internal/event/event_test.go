package event

import (
	"errors"
	"testing"
	"time"
)

func TestDecode_ChatVariants(t *testing.T) {
	tests := []struct {
		name string
		evt  Chat
	}{
		{"message", NewMessage("lobby", "alice", "hi")},
		{"user_joined", NewUserJoined("lobby", "alice")},
		{"user_left", NewUserLeft("lobby", "alice")},
		{"room_create", NewRoomCreate("lobby")},
		{"room_delete", NewRoomDelete("lobby")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.evt)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			got, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			c, ok := got.(Chat)
			if !ok {
				t.Fatalf("Decode() = %T, want Chat", got)
			}
			if c.Type != tt.name {
				t.Errorf("Type = %q, want %q", c.Type, tt.name)
			}
			if c.Room != tt.evt.Room || c.Name != tt.evt.Name || c.Message != tt.evt.Message {
				t.Errorf("Decode() = %+v, want %+v", c, tt.evt)
			}
		})
	}
}

func TestDecode_Status(t *testing.T) {
	b, err := Encode(NewStatus("10.0.0.5:3001", true))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	s, ok := got.(Status)
	if !ok {
		t.Fatalf("Decode() = %T, want Status", got)
	}
	if s.IP != "10.0.0.5:3001" || !s.Status {
		t.Errorf("Decode() = %+v", s)
	}
}

// Chat and Status events share one topic; the discriminant alone must
// route each payload to the right variant.
func TestDecode_SharedTopicDiscrimination(t *testing.T) {
	payloads := [][]byte{
		[]byte(`{"type":"message","room":"lobby","name":"a","message":"hi","when":"2026-01-01T00:00:00Z"}`),
		[]byte(`{"Type":"status","IP":"10.0.0.5:3001","Status":false}`),
	}
	got0, err := Decode(payloads[0])
	if err != nil {
		t.Fatalf("Decode(chat) error = %v", err)
	}
	if _, ok := got0.(Chat); !ok {
		t.Errorf("Decode(chat) = %T, want Chat", got0)
	}
	got1, err := Decode(payloads[1])
	if err != nil {
		t.Fatalf("Decode(status) error = %v", err)
	}
	if _, ok := got1.(Status); !ok {
		t.Errorf("Decode(status) = %T, want Status", got1)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"presence_sync"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("Decode() error = %v, want ErrUnknownType", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("Decode() expected error for malformed payload")
	}
}

func TestNewMessage_TimestampIsUTC(t *testing.T) {
	evt := NewMessage("lobby", "alice", "hi")
	if evt.When.Location() != time.UTC {
		t.Errorf("When location = %v, want UTC", evt.When.Location())
	}
	if time.Since(evt.When) > time.Minute {
		t.Errorf("When = %v, not recent", evt.When)
	}
}
