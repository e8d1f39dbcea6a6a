// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"strings"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/repository"
)

// ErrTopicNotFound 表示请求切换的话题不存在。
var ErrTopicNotFound = errors.New("topic not found")

// SessionService 定义了会话状态的生命周期与话题切换操作。
type SessionService interface {
	// EnsureSession 取出会话状态，不存在或身份已变化时创建全默认值的新状态。
	EnsureSession(ctx context.Context, sessionID, username string) (*model.SessionState, error)
	// SaveSession 把修改后的状态写回存储。
	SaveSession(ctx context.Context, state *model.SessionState) error
	// EndSession 丢弃会话状态（登出时调用）。
	EndSession(ctx context.Context, sessionID string) error
	// NewChat 清空当前缓冲并回到未选话题状态。
	NewChat(state *model.SessionState)
	// SelectTopic 切换到一个已有话题，缓冲区替换为该话题的历史。
	SelectTopic(ctx context.Context, state *model.SessionState, name string) error
	// ListTopics 返回话题名列表，最近创建的在前。
	ListTopics(ctx context.Context, state *model.SessionState) []string
	// SearchTopics 按关键词找到第一个命中的话题并切换过去。
	SearchTopics(ctx context.Context, state *model.SessionState, query string) (string, bool)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	historyRepo repository.ChatHistoryRepository
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(sessionRepo repository.SessionRepository, historyRepo repository.ChatHistoryRepository) SessionService {
	return &sessionService{
		sessionRepo: sessionRepo,
		historyRepo: historyRepo,
	}
}

// EnsureSession 加载或创建会话状态。
// 身份与存储的状态不一致（例如中途登录或登出）时直接换新状态，
// 游客累积的临时话题随之丢弃。
func (s *sessionService) EnsureSession(ctx context.Context, sessionID, username string) (*model.SessionState, error) {
	state, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state == nil || state.Username != username {
		state = model.NewSessionState(sessionID, username)
	}
	return state, nil
}

// SaveSession 写回会话状态。
func (s *sessionService) SaveSession(ctx context.Context, state *model.SessionState) error {
	return s.sessionRepo.Save(ctx, state)
}

// EndSession 丢弃会话状态。
func (s *sessionService) EndSession(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Delete(ctx, sessionID)
}

// NewChat 重置到初始状态：未持久化的缓冲被丢弃，话题清空。
func (s *sessionService) NewChat(state *model.SessionState) {
	state.CurrentTopic = ""
	state.History = nil
	state.Mode = model.ModeNoTopic
}

// SelectTopic 用持久化的话题历史替换内存缓冲并进入活跃状态。
func (s *sessionService) SelectTopic(ctx context.Context, state *model.SessionState, name string) error {
	s.ensureTopicsLoaded(ctx, state)

	idx := state.FindTopic(name)
	if idx < 0 {
		return ErrTopicNotFound
	}

	topics := state.Topics
	if state.Guest {
		topics = state.GuestTopics
	}
	state.CurrentTopic = name
	state.History = append([]model.Turn{}, topics[idx].Turns...)
	state.Mode = model.ModeActive
	return nil
}

// ListTopics 返回话题名，倒序排列以便最近的话题排在前面。
func (s *sessionService) ListTopics(ctx context.Context, state *model.SessionState) []string {
	s.ensureTopicsLoaded(ctx, state)

	topics := state.Topics
	if state.Guest {
		topics = state.GuestTopics
	}
	names := make([]string, 0, len(topics))
	for i := len(topics) - 1; i >= 0; i-- {
		names = append(names, topics[i].Name)
	}
	return names
}

// SearchTopics 在话题名与问题文本中做大小写不敏感的查找，
// 第一个命中的话题被设为当前话题。
func (s *sessionService) SearchTopics(ctx context.Context, state *model.SessionState, query string) (string, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return "", false
	}
	s.ensureTopicsLoaded(ctx, state)

	topics := state.Topics
	if state.Guest {
		topics = state.GuestTopics
	}
	for _, topic := range topics {
		if strings.Contains(strings.ToLower(topic.Name), query) || anyQuestionContains(topic.Turns, query) {
			if err := s.SelectTopic(ctx, state, topic.Name); err != nil {
				return "", false
			}
			return topic.Name, true
		}
	}
	return "", false
}

func anyQuestionContains(turns []model.Turn, query string) bool {
	for _, t := range turns {
		if strings.Contains(strings.ToLower(t.Question), query) {
			return true
		}
	}
	return false
}

func (s *sessionService) ensureTopicsLoaded(ctx context.Context, state *model.SessionState) {
	if state.Guest || state.TopicsLoaded {
		return
	}
	state.Topics = s.historyRepo.LoadAll(ctx, state.Username)
	state.TopicsLoaded = true
}
