// Package model 包含了应用的数据模型定义。
package model

import "time"

// Turn 代表一次完整的问答交互，创建后不可变，只允许追加。
type Turn struct {
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	// Model 记录产生回答的后端模型；调用失败时为 "none"。
	Model string `json:"model"`
}

// TopicHistory 是一个已命名话题及其按时间排列的全部 Turn。
// 用户的话题集合用有序切片而非 map 保存，保证去重时的遍历顺序稳定。
type TopicHistory struct {
	Name  string `json:"name"`
	Turns []Turn `json:"turns"`
}

// ChatRecord 对应于数据库中的 'ai_chats' 表，是问答历史的持久化行。
// 列结构与旧版数据表保持一致：用户名、时间、话题、问题、回答。
type ChatRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(64);index;not null" json:"username"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	Topic     string    `gorm:"type:varchar(255);not null" json:"topic"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
}

func (ChatRecord) TableName() string {
	return "ai_chats"
}

// SessionMode 表示会话状态机所处的状态。
type SessionMode string

const (
	// ModeNoTopic 是初始状态：尚未选定任何话题。
	ModeNoTopic SessionMode = "NO_TOPIC"
	// ModeNamingPending 表示首条消息已捕获，正在等待话题命名。
	ModeNamingPending SessionMode = "NAMING_PENDING"
	// ModeActive 表示存在当前话题，后续消息直接追加。
	ModeActive SessionMode = "ACTIVE"
)

// SessionState 是每个连接的会话状态，以 JSON 形式整体存入 Redis。
// 每次请求开始时加载，结束时写回，不依赖任何全局可变字典。
type SessionState struct {
	SessionID string      `json:"sessionId"`
	Username  string      `json:"username"` // 空字符串表示游客
	Guest     bool        `json:"guest"`
	Mode      SessionMode `json:"mode"`
	// CurrentTopic 为空表示尚未选定话题。
	CurrentTopic string `json:"currentTopic"`
	// History 是当前话题的内存缓冲，与持久层中的话题保持一致。
	History []Turn `json:"history"`
	// Topics 是已登录用户的话题缓存，每个会话惰性加载一次。
	Topics       []TopicHistory `json:"topics"`
	TopicsLoaded bool           `json:"topicsLoaded"`
	// GuestTopics 仅游客使用，累积本次会话内的全部话题，绝不落库。
	GuestTopics []TopicHistory `json:"guestTopics"`
}

// NewSessionState 创建一个全默认值的会话状态。
func NewSessionState(sessionID, username string) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		Username:  username,
		Guest:     username == "",
		Mode:      ModeNoTopic,
	}
}

// FindTopic 在话题缓存中按名字查找，返回索引，未找到时为 -1。
func (s *SessionState) FindTopic(name string) int {
	topics := s.Topics
	if s.Guest {
		topics = s.GuestTopics
	}
	for i := range topics {
		if topics[i].Name == name {
			return i
		}
	}
	return -1
}
