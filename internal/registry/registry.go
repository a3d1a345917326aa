package registry

import (
	"classchat/internal/broker"
	"classchat/internal/event"
	"classchat/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry 维护网关实例的发现表。实例启动时 Announce，优雅下线时
// Withdraw。没有心跳和 TTL：崩溃的实例会把 available=true 永远留在
// 表里，这是当前发现契约的已知缺口，路由方需自行容错。
type Registry struct {
	db  *gorm.DB
	pub broker.Publisher
}

func New(db *gorm.DB, pub broker.Publisher) *Registry {
	return &Registry{db: db, pub: pub}
}

// Announce 把实例标记为可用，并把状态事件镜像到 broker，
// 让其它组件不用轮询表也能看到实例生命周期。
func (r *Registry) Announce(addr string) error {
	if err := r.upsert(addr, true); err != nil {
		return err
	}
	r.pub.Publish(event.NewStatus(addr, true))
	log.Info().Str("address", addr).Msg("instance announced")
	return nil
}

// Withdraw 把实例标记为不可用，只在优雅下线路径被调用。
func (r *Registry) Withdraw(addr string) error {
	if err := r.upsert(addr, false); err != nil {
		return err
	}
	r.pub.Publish(event.NewStatus(addr, false))
	log.Info().Str("address", addr).Msg("instance withdrawn")
	return nil
}

func (r *Registry) upsert(addr string, available bool) error {
	rec := models.Instance{Address: addr, Available: available}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"available", "updated_at"}),
	}).Create(&rec).Error
}

// ListAvailable 返回所有标记为可用的实例地址，供客户端或前置
// 负载均衡挑选网关。
func (r *Registry) ListAvailable() ([]string, error) {
	var instances []models.Instance
	if err := r.db.Where("available = ?", true).Order("address").Find(&instances).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(instances))
	for _, ins := range instances {
		out = append(out, ins.Address)
	}
	return out, nil
}
