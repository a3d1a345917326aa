package rtc

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Relay 是协商消息的纯内存房间转发器。和网关不同，这里没有
// broker 和落库一条腿：offer/answer/candidate 只在本实例内
// 转发一次，错过就错过。
type Relay struct {
	mu    sync.Mutex
	rooms map[string]map[*Peer]struct{}
}

func NewRelay() *Relay {
	return &Relay{rooms: make(map[string]map[*Peer]struct{})}
}

// Signal 是信令消息。join/leave 管理房间成员，offer/answer/candidate
// 被原样转发给房间内的其它成员，from 由服务端填充。
type Signal struct {
	Type    string          `json:"type"`
	Room    string          `json:"room,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Join 加入房间，已在别的房间时先隐式离开。
func (r *Relay) Join(p *Peer, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.room == room && p.room != "" {
		return
	}
	if p.room != "" {
		r.leaveLocked(p)
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Peer]struct{})
		r.rooms[room] = members
	}
	members[p] = struct{}{}
	p.room = room
	r.fanoutLocked(room, p, Signal{Type: "peer_joined", Room: room, From: p.name})
}

// Forward 把一条协商消息转发给房间内的其它成员。
func (r *Relay) Forward(p *Peer, kind string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.room == "" {
		return
	}
	r.fanoutLocked(p.room, p, Signal{Type: kind, Room: p.room, From: p.name, Payload: payload})
}

// Leave 离开当前房间，连接关闭路径也走这里。
func (r *Relay) Leave(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(p)
}

func (r *Relay) leaveLocked(p *Peer) {
	if p.room == "" {
		return
	}
	room := p.room
	p.room = ""
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, p)
	if len(members) == 0 {
		delete(r.rooms, room)
		return
	}
	r.fanoutLocked(room, p, Signal{Type: "peer_left", Room: room, From: p.name})
}

func (r *Relay) fanoutLocked(room string, exclude *Peer, sig Signal) {
	data, err := json.Marshal(sig)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("encode signal")
		return
	}
	for peer := range r.rooms[room] {
		if peer == exclude || peer.closed {
			continue
		}
		select {
		case peer.send <- data:
		default:
			// 只关发送通道触发连接关闭，成员清理和 peer_left
			// 留给关闭路径的 Leave。
			peer.closed = true
			close(peer.send)
		}
	}
}

func (r *Relay) drop(p *Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

// Online 返回房间当前的信令连接数。
func (r *Relay) Online(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}
