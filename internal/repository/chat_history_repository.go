// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"fmt"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/pkg/log"

	"gorm.io/gorm"
)

// ChatHistoryRepository 定义了问答历史持久层的操作接口。
// 这是一个只追加的日志：每轮问答写一行，按 (用户, 话题) 归组读取。
type ChatHistoryRepository interface {
	// LoadAll 加载某个用户的全部话题及各话题按时间排列的 Turn。
	// 话题按首次出现的顺序返回，连接失败时返回空结果而不是错误。
	LoadAll(ctx context.Context, username string) []model.TopicHistory
	// Append 持久化一轮问答。失败只上报，不回滚内存状态。
	Append(ctx context.Context, username, topic string, turn model.Turn) error
}

type chatHistoryRepository struct {
	db *gorm.DB
}

// NewChatHistoryRepository 创建一个新的 ChatHistoryRepository 实例。
func NewChatHistoryRepository(db *gorm.DB) ChatHistoryRepository {
	return &chatHistoryRepository{db: db}
}

// LoadAll 按行读出用户的全部问答记录并按话题归组。
func (r *chatHistoryRepository) LoadAll(ctx context.Context, username string) []model.TopicHistory {
	var records []model.ChatRecord
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id ASC").
		Find(&records).Error
	if err != nil {
		log.Errorf("加载用户 '%s' 的问答历史失败: %v", username, err)
		return []model.TopicHistory{}
	}

	// 按首次出现顺序归组，保证话题遍历顺序稳定
	index := make(map[string]int)
	topics := make([]model.TopicHistory, 0)
	for _, rec := range records {
		turn := model.Turn{
			Timestamp: rec.Timestamp,
			Question:  rec.Question,
			Answer:    rec.Answer,
		}
		i, ok := index[rec.Topic]
		if !ok {
			index[rec.Topic] = len(topics)
			topics = append(topics, model.TopicHistory{Name: rec.Topic})
			i = len(topics) - 1
		}
		topics[i].Turns = append(topics[i].Turns, turn)
	}
	return topics
}

// Append 写入一行问答记录。
func (r *chatHistoryRepository) Append(ctx context.Context, username, topic string, turn model.Turn) error {
	record := model.ChatRecord{
		Username:  username,
		Timestamp: turn.Timestamp,
		Topic:     topic,
		Question:  turn.Question,
		Answer:    turn.Answer,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to append chat record: %w", err)
	}
	return nil
}
