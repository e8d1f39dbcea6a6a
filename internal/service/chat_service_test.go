package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/pkg/llm"
	"amazing-kissan-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// scriptedReply 是预先编排好的一次模型响应。
type scriptedReply struct {
	answer string
	model  string
	err    error
}

// scriptedResponder 按脚本依次返回响应，并记录每次收到的消息序列。
type scriptedResponder struct {
	replies []scriptedReply
	calls   [][]llm.Message
}

func (r *scriptedResponder) Complete(ctx context.Context, messages []llm.Message) (string, string, error) {
	r.calls = append(r.calls, messages)
	if len(r.replies) == 0 {
		return "", "", errors.New("no scripted reply left")
	}
	reply := r.replies[0]
	r.replies = r.replies[1:]
	return reply.answer, reply.model, reply.err
}

type appendedRecord struct {
	username string
	topic    string
	turn     model.Turn
}

// memoryHistoryRepo 是问答历史持久层的内存替身。
type memoryHistoryRepo struct {
	topics    []model.TopicHistory
	appended  []appendedRecord
	appendErr error
	loadCalls int
}

func (r *memoryHistoryRepo) LoadAll(ctx context.Context, username string) []model.TopicHistory {
	r.loadCalls++
	out := make([]model.TopicHistory, len(r.topics))
	copy(out, r.topics)
	return out
}

func (r *memoryHistoryRepo) Append(ctx context.Context, username, topic string, turn model.Turn) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.appended = append(r.appended, appendedRecord{username: username, topic: topic, turn: turn})
	return nil
}

func TestSubmitFirstMessageCreatesActiveTopic(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "Spray neem oil weekly.", model: "model-a"},
		{answer: "Leaf Blight Treatment", model: "model-a"},
	}}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	turn, err := svc.Submit(context.Background(), state, "My tomato leaves have black spots")
	require.NoError(t, err)

	assert.Equal(t, model.ModeActive, state.Mode)
	assert.Equal(t, "Leaf Blight Treatment", state.CurrentTopic)
	assert.Equal(t, "My tomato leaves have black spots", turn.Question)
	assert.Equal(t, "Spray neem oil weekly.", turn.Answer)
	assert.Equal(t, "model-a", turn.Model)
	// 时间戳取整到秒，与持久层的存储精度一致
	assert.Zero(t, turn.Timestamp.Nanosecond())
	require.Len(t, state.History, 1)

	// 话题缓存同步更新，历史落库一行
	require.Len(t, state.Topics, 1)
	assert.Equal(t, "Leaf Blight Treatment", state.Topics[0].Name)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "ramesh", repo.appended[0].username)
	assert.Equal(t, "Leaf Blight Treatment", repo.appended[0].topic)

	// 首条消息触发两次外部调用：回答 + 命名
	assert.Len(t, responder.calls, 2)
}

func TestSubmitEmptyInputIsNoOp(t *testing.T) {
	responder := &scriptedResponder{}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	_, err := svc.Submit(context.Background(), state, "   \t\n  ")
	assert.ErrorIs(t, err, ErrEmptyInput)

	assert.Equal(t, model.ModeNoTopic, state.Mode)
	assert.Empty(t, state.History)
	assert.Empty(t, repo.appended)
	assert.Empty(t, responder.calls)
}

func TestNamingFailureFallsBackToTimestampName(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "Check soil pH first.", model: "model-a"},
		{err: errors.New("naming backend down")},
	}}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	turn, err := svc.Submit(context.Background(), state, "Why is my wheat yellowing?")
	require.NoError(t, err)

	// 命名失败不是终态：回退名带上本轮时间戳，话题照常可用
	expected := "Chat - " + turn.Timestamp.Format(model.TimeFormat)
	assert.Equal(t, expected, state.CurrentTopic)
	assert.Equal(t, model.ModeActive, state.Mode)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, expected, repo.appended[0].topic)
}

func TestFailedResponderRecordsSentinelTurn(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{err: errors.New("all models failed")},
		{err: errors.New("all models failed")},
	}}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	turn, err := svc.Submit(context.Background(), state, "What fertilizer for paddy?")
	require.NoError(t, err)

	// 调用失败也是一个真实的 Turn，带固定占位内容
	assert.Equal(t, FailedAnswerText, turn.Answer)
	assert.Equal(t, FailedModelID, turn.Model)
	assert.Equal(t, "What fertilizer for paddy?", turn.Question)

	assert.Equal(t, model.ModeActive, state.Mode)
	require.Len(t, state.History, 1)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, FailedAnswerText, repo.appended[0].turn.Answer)
}

func TestNamingDedupMergesIntoExistingTopic(t *testing.T) {
	existingTurn := model.Turn{Question: "How often to water?", Answer: "Twice a week."}
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "Add compost before sowing.", model: "model-a"},
		{answer: "Soil Management Tips", model: "model-a"},
	}}
	repo := &memoryHistoryRepo{topics: []model.TopicHistory{
		{Name: "Soil Management", Turns: []model.Turn{existingTurn}},
	}}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	_, err := svc.Submit(context.Background(), state, "How do I prepare soil?")
	require.NoError(t, err)

	// "Soil Management Tips" 包含已有话题名，并入 "Soil Management"
	assert.Equal(t, "Soil Management", state.CurrentTopic)
	require.Len(t, state.History, 2)
	assert.Equal(t, existingTurn.Question, state.History[0].Question)

	require.Len(t, state.Topics, 1)
	assert.Len(t, state.Topics[0].Turns, 2)
	require.Len(t, repo.appended, 1)
	assert.Equal(t, "Soil Management", repo.appended[0].topic)
}

func TestResolveTopicName(t *testing.T) {
	topics := []model.TopicHistory{
		{Name: "Drip Irrigation Basics"},
		{Name: "Irrigation Scheduling"},
	}

	// 双向包含都算命中，大小写不敏感
	assert.Equal(t, "Drip Irrigation Basics", ResolveTopicName("irrigation", topics))
	assert.Equal(t, "Drip Irrigation Basics", ResolveTopicName("DRIP IRRIGATION BASICS AND MORE", topics))

	// 多个命中时按话题创建顺序取第一个
	assert.Equal(t, "Drip Irrigation Basics", ResolveTopicName("Irrigation", topics))

	// 无命中时保留候选名
	assert.Equal(t, "Pest Control", ResolveTopicName("Pest Control", topics))
}

func TestActiveModeAppendsWithoutRenaming(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "first answer", model: "model-a"},
		{answer: "Crop Rotation", model: "model-a"},
		{answer: "second answer", model: "model-a"},
	}}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	_, err := svc.Submit(context.Background(), state, "What is crop rotation?")
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), state, "Which crops to rotate with wheat?")
	require.NoError(t, err)

	// 活跃状态下第二次提交只调用一次外部模型，不再命名
	assert.Len(t, responder.calls, 3)
	assert.Equal(t, "Crop Rotation", state.CurrentTopic)
	assert.Len(t, state.History, 2)
	require.Len(t, state.Topics, 1)
	assert.Len(t, state.Topics[0].Turns, 2)
	assert.Len(t, repo.appended, 2)

	// 第二次请求带上第一轮的上下文
	lastCall := responder.calls[2]
	var sawFirstAnswer bool
	for _, m := range lastCall {
		if m.Role == "assistant" && m.Content == "first answer" {
			sawFirstAnswer = true
		}
	}
	assert.True(t, sawFirstAnswer)
}

func TestGuestTurnsAreNeverPersisted(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "guest answer", model: "model-a"},
		{answer: "Pest Control", model: "model-a"},
	}}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("guest-abc", "")
	require.True(t, state.Guest)

	_, err := svc.Submit(context.Background(), state, "How to stop aphids?")
	require.NoError(t, err)

	assert.Empty(t, repo.appended)
	assert.Zero(t, repo.loadCalls)
	require.Len(t, state.GuestTopics, 1)
	assert.Empty(t, state.Topics)
}

func TestGuestContextFlattensEarlierTopics(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "a1", model: "model-a"},
		{answer: "Topic One", model: "model-a"},
		{answer: "a2", model: "model-a"},
		{answer: "Topic Two", model: "model-a"},
	}}
	repo := &memoryHistoryRepo{}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("guest-abc", "")
	_, err := svc.Submit(context.Background(), state, "q1")
	require.NoError(t, err)

	// 开始新对话后，游客的历史话题仍作为上下文拍平带上
	state.CurrentTopic = ""
	state.History = nil
	state.Mode = model.ModeNoTopic

	_, err = svc.Submit(context.Background(), state, "q2")
	require.NoError(t, err)

	secondAnswerCall := responder.calls[2]
	var sawEarlierTopic bool
	for _, m := range secondAnswerCall {
		if m.Role == "user" && m.Content == "q1" {
			sawEarlierTopic = true
		}
	}
	assert.True(t, sawEarlierTopic)
	assert.Len(t, state.GuestTopics, 2)
}

func TestSanitizeTopicName(t *testing.T) {
	assert.Equal(t, "Leaf Blight Treatment", sanitizeTopicName("  \"Leaf Blight\n Treatment\"  "))
	assert.Equal(t, "", sanitizeTopicName("  \t \n"))

	long := strings.Repeat("x", 300)
	got := sanitizeTopicName(long)
	assert.LessOrEqual(t, len([]rune(got)), maxTopicNameRunes)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	responder := &scriptedResponder{replies: []scriptedReply{
		{answer: "answer", model: "model-a"},
		{answer: "Some Topic", model: "model-a"},
	}}
	repo := &memoryHistoryRepo{appendErr: errors.New("db down")}
	svc := NewChatService(repo, responder)

	state := model.NewSessionState("user:ramesh", "ramesh")
	_, err := svc.Submit(context.Background(), state, "hello")
	require.NoError(t, err)

	// 落库失败只记日志，内存状态照常推进
	assert.Equal(t, model.ModeActive, state.Mode)
	assert.Len(t, state.History, 1)
}
