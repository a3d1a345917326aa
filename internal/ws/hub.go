package ws

import (
	"errors"
	"strings"
	"sync"

	"classchat/internal/broker"
	"classchat/internal/event"
	"classchat/internal/metrics"

	"github.com/rs/zerolog/log"
)

// 协议层错误，通过连接上的 error 事件回给客户端，连接保持打开。
var (
	ErrNotInRoom    = errors.New("not in a room")
	ErrEmptyMessage = errors.New("empty message")
)

// Filter 是可插拔的内容审核钩子，返回错误则消息被拒绝，
// 不产生任何事件。规则本身在本仓库之外。
type Filter func(room, sender, text string) error

// Hub 持有本实例的 Presence 表并实现 join/send/leave 三个操作。
// 每次操作都在同一把锁下完成本地广播的排队，保证单实例内
// 同一房间的事件顺序与调用顺序一致。跨实例没有顺序保证。
type Hub struct {
	mu       sync.Mutex
	presence *Presence
	pub      broker.Publisher
	softCap  int

	// Filter 在启动装配时设置，之后不再改动。
	Filter Filter
}

func NewHub(pub broker.Publisher, softCap int) *Hub {
	return &Hub{presence: NewPresence(), pub: pub, softCap: softCap}
}

// Join 把连接加入房间。已在别的房间时先做一次隐式 leave。
// 房间在首次 join 时隐式出现，不存在"房间不存在"错误。
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room == room && c.room != "" {
		return
	}
	if c.room != "" {
		h.leaveLocked(c)
	}
	if h.softCap > 0 && h.presence.count(room) >= h.softCap {
		// 软上限只告警不拦截，权威的容量控制不在网关。
		log.Warn().Str("room", room).Int("cap", h.softCap).Msg("room over soft cap")
	}
	h.presence.add(c, room)
	c.room = room
	evt := event.NewUserJoined(room, c.name)
	h.broadcastLocked(room, c, evt)
	h.pub.Publish(evt)
}

// Send 校验后做双路投递：先排队本地广播，再尽力而为地发布到
// broker。发布失败不影响本地实时路径。
func (h *Hub) Send(c *Client, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.room == "" {
		return ErrNotInRoom
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if h.Filter != nil {
		if err := h.Filter(c.room, c.name, text); err != nil {
			return err
		}
	}
	evt := event.NewMessage(c.room, c.name, text)
	metrics.WsMessagesTotal.Inc()
	h.broadcastLocked(c.room, c, evt)
	h.pub.Publish(evt)
	return nil
}

// Leave 把连接移出当前房间，连接关闭路径也走这里。
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Client) {
	if c.room == "" {
		return
	}
	room := c.room
	c.room = ""
	empty := h.presence.remove(c, room)
	evt := event.NewUserLeft(room, c.name)
	if !empty {
		// 房间本地已空时跳过广播，但发布照旧：别的实例
		// 可能还有成员，落库侧需要完整的事件流。
		h.broadcastLocked(room, c, evt)
	}
	h.pub.Publish(evt)
}

// broadcastLocked 把事件排队给房间内除 exclude 外的所有连接。
// 发不进去的慢连接踢掉：只关闭发送通道触发连接关闭，Presence
// 的清理和 user_left 事件留给关闭路径统一走 Leave。
func (h *Hub) broadcastLocked(room string, exclude *Client, evt event.Chat) {
	data, err := event.Encode(evt)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("encode broadcast")
		return
	}
	for _, cli := range h.presence.members(room) {
		if cli == exclude || cli.closed {
			continue
		}
		select {
		case cli.send <- data:
		default:
			cli.closed = true
			close(cli.send)
		}
	}
}

// drop 关闭连接的发送通道，幂等。
func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend 在锁内投递一条非广播消息（error 事件等），已关闭的连接丢弃。
func (h *Hub) trySend(c *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Online 返回房间在本实例上的在线连接数，供 REST 接口复用。
func (h *Hub) Online(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence.count(room)
}

// Room 返回连接当前所在的房间，仅测试和日志使用。
func (h *Hub) Room(c *Client) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return c.room
}
