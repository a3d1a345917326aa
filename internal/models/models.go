package models

import "time"

// Room 是持久化侧的房间记录，由管理事件创建和删除，
// 与网关内存中的在线房间相互独立。
type Room struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:128;not null"`
	CreatedAt time.Time
}

// Message 是落库的聊天消息。没有幂等键，broker 重投会产生重复行。
type Message struct {
	ID        uint   `gorm:"primaryKey"`
	Room      string `gorm:"index:idx_msg_room;size:128;not null"`
	Sender    string `gorm:"size:128;not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// Instance 是网关实例的注册表记录，address 唯一。
// 只有优雅下线会把 Available 置回 false，崩溃的实例会留下陈旧记录。
type Instance struct {
	ID        uint   `gorm:"primaryKey"`
	Address   string `gorm:"uniqueIndex;size:128;not null"`
	Available bool   `gorm:"not null"`
	UpdatedAt time.Time
}
