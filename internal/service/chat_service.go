// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"amazing-kissan-go/internal/config"
	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/repository"
	"amazing-kissan-go/pkg/llm"
	"amazing-kissan-go/pkg/log"
)

// 外部调用失败时写入 Turn 的固定占位内容。
const (
	FailedAnswerText = "request failed"
	FailedModelID    = "none"
)

// 话题名最长保留的字符数，超出部分截断。
const maxTopicNameRunes = 100

// ErrEmptyInput 表示提交内容为空白，调用是无操作。
var ErrEmptyInput = errors.New("empty input")

// ChatService 定义了 AI 助手单轮问答的编排接口。
type ChatService interface {
	// Submit 处理一次用户提问：组装上下文、调用外部模型、按状态机
	// 路由生成的 Turn 并对已登录用户落库。会话状态被原地修改，
	// 写回 Redis 由调用方负责。
	Submit(ctx context.Context, state *model.SessionState, input string) (*model.Turn, error)
}

type chatService struct {
	historyRepo repository.ChatHistoryRepository
	llmClient   llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(historyRepo repository.ChatHistoryRepository, llmClient llm.Client) ChatService {
	return &chatService{
		historyRepo: historyRepo,
		llmClient:   llmClient,
	}
}

// Submit 执行一轮完整的问答编排。
func (s *chatService) Submit(ctx context.Context, state *model.SessionState, input string) (*model.Turn, error) {
	// 1. 空白输入是无操作，不改变任何状态
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	// 2. 组装上下文并调用外部模型
	messages := s.composeMessages(state, input)
	answer, modelID, err := s.llmClient.Complete(ctx, messages)
	if err != nil {
		// 失败也记录为一个真实的 Turn，不向上抛
		log.Warnf("外部模型调用失败, session=%s: %v", state.SessionID, err)
		answer = FailedAnswerText
		modelID = FailedModelID
	}

	// 3. 构建 Turn 并按状态机路由。时间戳取整到秒，
	// 与持久层的存储精度一致，往返读取不产生偏差
	turn := model.Turn{
		Timestamp: time.Now().Truncate(time.Second),
		Question:  input,
		Answer:    answer,
		Model:     modelID,
	}
	s.route(ctx, state, turn)

	// 4. 已登录用户立即落库；失败只记日志，内存状态照常推进
	if !state.Guest {
		if err := s.historyRepo.Append(ctx, state.Username, state.CurrentTopic, turn); err != nil {
			log.Errorf("问答记录落库失败, user=%s, topic=%s: %v", state.Username, state.CurrentTopic, err)
		}
	}

	return &turn, nil
}

// composeMessages 组装发给模型的消息序列：系统提示 + 历史 + 本次提问。
// 已登录用户只带当前话题的历史；游客带上本次会话内所有临时话题的
// 历史（拍平后置于当前话题之前），这是有意保留的行为。
func (s *chatService) composeMessages(state *model.SessionState, input string) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: systemPrompt()}}

	if state.Guest {
		for _, topic := range state.GuestTopics {
			if topic.Name == state.CurrentTopic {
				continue
			}
			msgs = appendTurns(msgs, topic.Turns)
		}
	}
	msgs = appendTurns(msgs, state.History)

	return append(msgs, llm.Message{Role: "user", Content: input})
}

func appendTurns(msgs []llm.Message, turns []model.Turn) []llm.Message {
	for _, t := range turns {
		msgs = append(msgs, llm.Message{Role: "user", Content: t.Question})
		msgs = append(msgs, llm.Message{Role: "assistant", Content: t.Answer})
	}
	return msgs
}

func systemPrompt() string {
	if p := config.Conf.Assistant.SystemPrompt; p != "" {
		return p
	}
	return "You are an agriculture assistant for farmers. Answer in clear, simple English."
}

// route 按会话状态机处理新生成的 Turn。
func (s *chatService) route(ctx context.Context, state *model.SessionState, turn model.Turn) {
	switch state.Mode {
	case model.ModeNoTopic, model.ModeNamingPending:
		// 捕获首条消息，进入待命名状态，再由命名结果绑定话题
		state.History = append(state.History, turn)
		state.Mode = model.ModeNamingPending
		s.bindTopic(ctx, state, turn)
		state.Mode = model.ModeActive
	case model.ModeActive:
		state.History = append(state.History, turn)
		s.appendToTopicCache(state, state.CurrentTopic, turn)
	}
}

// bindTopic 为新话题求名：优先外部命名，失败回退到时间戳名，
// 命名结果与已有话题做包含关系去重，命中时并入旧话题。
func (s *chatService) bindTopic(ctx context.Context, state *model.SessionState, turn model.Turn) {
	s.ensureTopicsLoaded(ctx, state)

	name := s.nameTopic(ctx, turn)
	if name == "" {
		// 命名失败不是终态：话题仍然可用，回退为确定性的默认名
		name = "Chat - " + turn.Timestamp.Format(model.TimeFormat)
		state.CurrentTopic = name
		s.appendToTopicCache(state, name, turn)
		return
	}

	resolved := ResolveTopicName(name, existingTopics(state))
	state.CurrentTopic = resolved
	if resolved != name {
		// 并入已有话题：缓冲区改为旧话题历史加上本轮
		if idx := state.FindTopic(resolved); idx >= 0 {
			existing := existingTopics(state)[idx].Turns
			state.History = append(append([]model.Turn{}, existing...), turn)
		}
	}
	s.appendToTopicCache(state, resolved, turn)
}

// nameTopic 调用外部模型为首轮问答生成一个 3-5 个词的英文短名。
// 失败、超时或返回空串时返回空字符串哨兵，绝不向上层抛错。
func (s *chatService) nameTopic(ctx context.Context, turn model.Turn) string {
	prompt := config.Conf.Assistant.NamingPrompt
	if prompt == "" {
		prompt = "Give a short 3-5 word English title for this farming conversation. Reply with the title only."
	}
	msgs := []llm.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: fmt.Sprintf("Q: %s\nA: %s", turn.Question, turn.Answer)},
	}

	name, _, err := s.llmClient.Complete(ctx, msgs)
	if err != nil {
		log.Warnf("话题命名调用失败: %v", err)
		return ""
	}
	return sanitizeTopicName(name)
}

// sanitizeTopicName 把模型输出压成一行干净的短名并限制长度。
func sanitizeTopicName(name string) string {
	cleaned := strings.Join(strings.Fields(name), " ")
	cleaned = strings.Trim(cleaned, " \t\r\n\"'`")
	if cleaned == "" {
		return ""
	}
	runes := []rune(cleaned)
	if len(runes) <= maxTopicNameRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxTopicNameRunes-3])) + "..."
}

// ResolveTopicName 将候选名与已有话题名做大小写不敏感的包含比较，
// 任一方向包含即视为同一话题，按话题创建顺序取第一个命中的旧名。
func ResolveTopicName(candidate string, topics []model.TopicHistory) string {
	lower := strings.ToLower(candidate)
	for _, topic := range topics {
		existing := strings.ToLower(topic.Name)
		if strings.Contains(existing, lower) || strings.Contains(lower, existing) {
			return topic.Name
		}
	}
	return candidate
}

func existingTopics(state *model.SessionState) []model.TopicHistory {
	if state.Guest {
		return state.GuestTopics
	}
	return state.Topics
}

// appendToTopicCache 把 Turn 追加到会话话题缓存里，必要时新建话题。
// 游客写入 GuestTopics，永不持久化；登录用户写入 Topics 缓存。
func (s *chatService) appendToTopicCache(state *model.SessionState, name string, turn model.Turn) {
	idx := state.FindTopic(name)
	if state.Guest {
		if idx < 0 {
			state.GuestTopics = append(state.GuestTopics, model.TopicHistory{Name: name})
			idx = len(state.GuestTopics) - 1
		}
		state.GuestTopics[idx].Turns = append(state.GuestTopics[idx].Turns, turn)
		return
	}
	if idx < 0 {
		state.Topics = append(state.Topics, model.TopicHistory{Name: name})
		idx = len(state.Topics) - 1
	}
	state.Topics[idx].Turns = append(state.Topics[idx].Turns, turn)
}

// ensureTopicsLoaded 每个会话对登录用户惰性加载一次话题集合。
func (s *chatService) ensureTopicsLoaded(ctx context.Context, state *model.SessionState) {
	if state.Guest || state.TopicsLoaded {
		return
	}
	state.Topics = s.historyRepo.LoadAll(ctx, state.Username)
	state.TopicsLoaded = true
}
