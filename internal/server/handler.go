package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"classchat/internal/broker"
	"classchat/internal/event"
	"classchat/internal/models"
	"classchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖在装配时注入。
type Handler struct {
	hub *ws.Hub
	reg Instances
	pub broker.Publisher
	db  DB
}

// Instances 是发现接口依赖的最小注册表视图。
type Instances interface {
	ListAvailable() ([]string, error)
}

// DB 是 handler 用到的最小查询面。
type DB interface {
	ListMessages(room string, limit int, beforeID uint) ([]models.Message, error)
}

func NewHandler(hub *ws.Hub, reg Instances, pub broker.Publisher, db DB) *Handler {
	return &Handler{hub: hub, reg: reg, pub: pub, db: db}
}

// ListInstances 是发现接口：返回当前标记为可用的网关地址，
// 客户端或前置负载均衡据此挑选实例。
func (h *Handler) ListInstances(c *gin.Context) {
	addrs, err := h.reg.ListAvailable()
	if err != nil {
		log.Error().Err(err).Msg("list instances")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list instances"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": addrs})
}

// CreateRoom 发布 room_create 管理事件。持久化侧的房间记录由
// Worker 消费事件后创建，这里不直接写库。
func (h *Handler) CreateRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	h.pub.Publish(event.NewRoomCreate(req.Name))
	c.JSON(http.StatusAccepted, gin.H{"room": req.Name})
}

// DeleteRoom 发布 room_delete 管理事件，Worker 会级联删除该房间
// 的全部消息。网关内存里的在线房间不受影响。
func (h *Handler) DeleteRoom(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	h.pub.Publish(event.NewRoomDelete(name))
	c.JSON(http.StatusAccepted, gin.H{"room": name})
}

type msgDTO struct {
	Type      string    `json:"type"`
	ID        uint      `json:"id"`
	Room      string    `json:"room"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// ListMessages 分页读取房间的历史消息，按 id 升序返回。
func (h *Handler) ListMessages(c *gin.Context) {
	room := strings.TrimSpace(c.Param("name"))
	if room == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var beforeID uint
	if bid := c.Query("before_id"); bid != "" {
		if v, err := strconv.Atoi(bid); err == nil && v > 0 {
			beforeID = uint(v)
		}
	}
	msgs, err := h.db.ListMessages(room, limit, beforeID)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("list messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	out := make([]msgDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, msgDTO{Type: "message", ID: m.ID, Room: m.Room, Name: m.Sender, Message: m.Body, CreatedAt: m.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out, "online": h.hub.Online(room)})
}
