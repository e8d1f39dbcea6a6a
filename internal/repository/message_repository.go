// Package repository 提供了数据访问层的实现。
package repository

import (
	"amazing-kissan-go/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 定义了留言板消息与评论的持久化操作。
type MessageRepository interface {
	Create(message *model.Message) error
	// ListByMode 按可见范围列出消息；私信模式只返回与该用户相关的消息。
	ListByMode(mode, username string) ([]model.Message, error)
	// ListAfter 返回 ID 大于 afterID 的消息，供客户端定时轮询增量拉取。
	ListAfter(mode, username string, afterID uint) ([]model.Message, error)
	// IncrementLikes 以原子 UPDATE 的方式给消息点赞。
	IncrementLikes(messageID uint) error
	FindByID(messageID uint) (*model.Message, error)
	CreateComment(comment *model.Comment) error
	ListComments(messageID uint) ([]model.Comment, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 写入一条新消息。
func (r *messageRepository) Create(message *model.Message) error {
	return r.db.Create(message).Error
}

func (r *messageRepository) modeScope(mode, username string) *gorm.DB {
	db := r.db.Where("mode = ?", mode)
	if mode == model.MessageModePrivate {
		// 私信只对发送方和接收方可见
		db = db.Where("sender = ? OR receiver = ?", username, username)
	}
	return db
}

// ListByMode 列出某个可见范围内的全部消息，按时间正序。
func (r *messageRepository) ListByMode(mode, username string) ([]model.Message, error) {
	var messages []model.Message
	err := r.modeScope(mode, username).Order("id ASC").Find(&messages).Error
	return messages, err
}

// ListAfter 增量拉取，供客户端固定间隔轮询。
func (r *messageRepository) ListAfter(mode, username string, afterID uint) ([]model.Message, error) {
	var messages []model.Message
	err := r.modeScope(mode, username).
		Where("id > ?", afterID).
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

// IncrementLikes 用一条 UPDATE 完成点赞计数，避免并发丢更新。
func (r *messageRepository) IncrementLikes(messageID uint) error {
	return r.db.Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("likes", gorm.Expr("likes + ?", 1)).Error
}

// FindByID 查找单条消息。
func (r *messageRepository) FindByID(messageID uint) (*model.Message, error) {
	var message model.Message
	err := r.db.First(&message, messageID).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// CreateComment 在某条消息下写入一条评论。
func (r *messageRepository) CreateComment(comment *model.Comment) error {
	return r.db.Create(comment).Error
}

// ListComments 按时间正序列出某条消息的全部评论。
func (r *messageRepository) ListComments(messageID uint) ([]model.Comment, error) {
	var comments []model.Comment
	err := r.db.Where("message_id = ?", messageID).Order("id ASC").Find(&comments).Error
	return comments, err
}
