package rtc

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

// 信令连接的存活探测参数：每 pingInterval 发一次 ping，
// pongWait 内没有任何读活动的连接被主动断掉，避免死连接
// 把房间成员表撑大。
const (
	pingInterval = 20 * time.Second
	pongWait     = 50 * time.Second
	writeWait    = 10 * time.Second
)

// Peer 是一条信令连接。room 和 closed 由 Relay 的锁保护。
type Peer struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	name   string
	room   string
	closed bool
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve 升级信令 WebSocket 连接，认证口径与网关一致。
func Serve(relay *Relay, cfg config.Config) gin.HandlerFunc {
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
		peer := &Peer{
			id:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, 64),
			name: claims.Identity(),
		}
		metrics.SignalConnections.Inc()

		go peer.writePump()
		peer.readPump(relay)
	}
}

func (p *Peer) readPump(relay *Relay) {
	defer func() {
		relay.Leave(p)
		relay.drop(p)
		_ = p.conn.Close()
		metrics.SignalConnections.Dec()
	}()
	p.conn.SetReadLimit(64 << 10)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			break
		}
		var sig Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			log.Debug().Str("peer", p.id).Msg("malformed signal dropped")
			continue
		}
		switch sig.Type {
		case "join":
			if sig.Room != "" {
				relay.Join(p, sig.Room)
			}
		case "leave":
			relay.Leave(p)
		case "offer", "answer", "candidate":
			relay.Forward(p, sig.Type, sig.Payload)
		default:
			log.Debug().Str("peer", p.id).Str("type", sig.Type).Msg("unknown signal dropped")
		}
	}
}

func (p *Peer) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()
	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
