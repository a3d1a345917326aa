package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"classchat/internal/auth"
	"classchat/internal/config"
	"classchat/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client 是一条已认证的客户端连接。room 和 closed 由 Hub 的锁保护。
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	name   string
	room   string
	closed bool
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Inbound 是客户端入站操作：join_room{room}、message{message}、
// leave_room{room}。出站事件直接复用 event.Chat 的编码。
type Inbound struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Message string `json:"message"`
}

type errorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Serve 升级 WebSocket 连接。未认证的连接在产生任何事件之前
// 就被拒绝。
func Serve(hub *Hub, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseToken(token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			id:   uuid.NewString(),
			hub:  hub,
			conn: conn,
			send: make(chan []byte, 256),
			name: claims.Identity(),
		}
		metrics.WsConnections.Inc()
		log.Info().Str("conn", client.id).Str("name", client.name).Msg("ws connected")

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		// 连接关闭是唯一的取消信号：先同步清掉 Presence，
		// 再关闭发送通道。
		c.hub.Leave(c)
		c.hub.drop(c)
		_ = c.conn.Close()
		metrics.WsConnections.Dec()
		log.Info().Str("conn", c.id).Str("name", c.name).Msg("ws closed")
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError("invalid payload")
			continue
		}
		switch in.Type {
		case "join_room":
			if in.Room == "" {
				c.sendError("room is required")
				continue
			}
			c.hub.Join(c, in.Room)
		case "message":
			if err := c.hub.Send(c, in.Message); err != nil {
				c.sendError(err.Error())
			}
		case "leave_room":
			c.hub.Leave(c)
		default:
			c.sendError("unknown type")
		}
	}
}

// sendError 把协议错误作为 error 事件回给客户端，不断开连接。
func (c *Client) sendError(msg string) {
	data, err := json.Marshal(errorEvent{Type: "error", Message: msg})
	if err != nil {
		return
	}
	c.hub.trySend(c, data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
