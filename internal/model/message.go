// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息的可见范围。
const (
	MessageModePublic  = "Public"
	MessageModePrivate = "Private"
)

// Message 对应于数据库中的 'messages' 表，是农户留言板上的一条消息。
type Message struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Mode   string `gorm:"type:varchar(16);index;not null;default:Public" json:"mode"`
	Sender string `gorm:"type:varchar(64);index;not null" json:"sender"`
	// Receiver 仅私信模式使用，公开消息为空。
	Receiver  string    `gorm:"type:varchar(64);index" json:"receiver"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Likes     int       `gorm:"not null;default:0" json:"likes"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// Comment 对应于数据库中的 'comments' 表，挂在某条消息下。
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"index;not null" json:"messageId"`
	Commenter string    `gorm:"type:varchar(64);not null" json:"commenter"`
	Comment   string    `gorm:"type:text;not null" json:"comment"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (Comment) TableName() string {
	return "comments"
}
