package server

import (
	"classchat/internal/models"

	"gorm.io/gorm"
)

// Store 把历史消息查询封装在 gorm 之上，实现 handler 的 DB 接口。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListMessages 按 id 倒序取一页再反转为升序，和写入顺序一致。
func (s *Store) ListMessages(room string, limit int, beforeID uint) ([]models.Message, error) {
	q := s.db.Where("room = ?", room)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []models.Message
	if err := q.Order("id desc").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
