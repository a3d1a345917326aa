package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// chat 主题上同时流动两类事件：聊天事件和实例状态事件。
// 消费端只在这里做一次解码，之后拿到的都是强类型变体。

const (
	TypeMessage    = "message"
	TypeUserJoined = "user_joined"
	TypeUserLeft   = "user_left"
	TypeRoomCreate = "room_create"
	TypeRoomDelete = "room_delete"
	TypeStatus     = "status"
)

var ErrUnknownType = errors.New("unknown event type")

// Event 是 chat 主题上的事件联合类型，只有 Chat 和 Status 两个变体。
type Event interface {
	Kind() string
}

// Chat 是网关产生的聊天事件，message/user_joined/user_left
// 由连接操作产生，room_create/room_delete 由管理接口产生。
type Chat struct {
	Type    string    `json:"type"`
	Room    string    `json:"room,omitempty"`
	Name    string    `json:"name,omitempty"`
	Message string    `json:"message,omitempty"`
	When    time.Time `json:"when"`
}

func (c Chat) Kind() string { return c.Type }

// Status 是实例生命周期事件，与 Registry 表的 upsert 同步发出。
type Status struct {
	Type   string `json:"Type"`
	IP     string `json:"IP"`
	Status bool   `json:"Status"`
}

func (s Status) Kind() string { return TypeStatus }

func NewMessage(room, name, text string) Chat {
	return Chat{Type: TypeMessage, Room: room, Name: name, Message: text, When: time.Now().UTC()}
}

func NewUserJoined(room, name string) Chat {
	return Chat{Type: TypeUserJoined, Room: room, Name: name, When: time.Now().UTC()}
}

func NewUserLeft(room, name string) Chat {
	return Chat{Type: TypeUserLeft, Room: room, Name: name, When: time.Now().UTC()}
}

func NewRoomCreate(room string) Chat {
	return Chat{Type: TypeRoomCreate, Room: room, When: time.Now().UTC()}
}

func NewRoomDelete(room string) Chat {
	return Chat{Type: TypeRoomDelete, Room: room, When: time.Now().UTC()}
}

func NewStatus(addr string, available bool) Status {
	return Status{Type: TypeStatus, IP: addr, Status: available}
}

// Encode 序列化事件，作为 broker 消息体。
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode 按 type 判别字段把消息体还原为具体变体。
func Decode(data []byte) (Event, error) {
	var probe struct {
		Lower string `json:"type"`
		Upper string `json:"Type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}
	kind := probe.Lower
	if kind == "" {
		kind = probe.Upper
	}
	switch kind {
	case TypeStatus:
		var s Status
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	case TypeMessage, TypeUserJoined, TypeUserLeft, TypeRoomCreate, TypeRoomDelete:
		var c Chat
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}
