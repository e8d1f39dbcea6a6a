package service

import (
	"testing"

	"amazing-kissan-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memoryMessageRepo 是留言板持久层的内存替身。
type memoryMessageRepo struct {
	messages []model.Message
	comments []model.Comment
}

func (r *memoryMessageRepo) Create(message *model.Message) error {
	message.ID = uint(len(r.messages) + 1)
	r.messages = append(r.messages, *message)
	return nil
}

func (r *memoryMessageRepo) visible(m model.Message, mode, username string) bool {
	if m.Mode != mode {
		return false
	}
	if mode == model.MessageModePrivate {
		return m.Sender == username || m.Receiver == username
	}
	return true
}

func (r *memoryMessageRepo) ListByMode(mode, username string) ([]model.Message, error) {
	return r.ListAfter(mode, username, 0)
}

func (r *memoryMessageRepo) ListAfter(mode, username string, afterID uint) ([]model.Message, error) {
	var out []model.Message
	for _, m := range r.messages {
		if m.ID > afterID && r.visible(m, mode, username) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryMessageRepo) IncrementLikes(messageID uint) error {
	for i := range r.messages {
		if r.messages[i].ID == messageID {
			r.messages[i].Likes++
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *memoryMessageRepo) FindByID(messageID uint) (*model.Message, error) {
	for i := range r.messages {
		if r.messages[i].ID == messageID {
			copied := r.messages[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryMessageRepo) CreateComment(comment *model.Comment) error {
	comment.ID = uint(len(r.comments) + 1)
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *memoryMessageRepo) ListComments(messageID uint) ([]model.Comment, error) {
	var out []model.Comment
	for _, c := range r.comments {
		if c.MessageID == messageID {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestPostMessageValidation(t *testing.T) {
	repo := &memoryMessageRepo{}
	svc := NewMessageService(repo)

	_, err := svc.Post("ramesh", "", "   ", model.MessageModePublic)
	assert.Error(t, err)

	_, err = svc.Post("ramesh", "", "hello", "broadcast")
	assert.Error(t, err)

	// 私信必须指定接收方
	_, err = svc.Post("ramesh", "", "hello", model.MessageModePrivate)
	assert.Error(t, err)

	assert.Empty(t, repo.messages)
}

func TestPostPublicMessageClearsReceiver(t *testing.T) {
	repo := &memoryMessageRepo{}
	svc := NewMessageService(repo)

	message, err := svc.Post("ramesh", "suresh", "hello all", model.MessageModePublic)
	require.NoError(t, err)
	assert.Empty(t, message.Receiver)
	assert.Equal(t, model.MessageModePublic, message.Mode)
}

func TestFeedUsesAfterCursor(t *testing.T) {
	repo := &memoryMessageRepo{}
	svc := NewMessageService(repo)

	first, err := svc.Post("ramesh", "", "first", model.MessageModePublic)
	require.NoError(t, err)
	_, err = svc.Post("suresh", "", "second", model.MessageModePublic)
	require.NoError(t, err)

	all, err := svc.Feed(model.MessageModePublic, "ramesh", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	fresh, err := svc.Feed(model.MessageModePublic, "ramesh", first.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "second", fresh[0].Message)
}

func TestPrivateFeedOnlyVisibleToParticipants(t *testing.T) {
	repo := &memoryMessageRepo{}
	svc := NewMessageService(repo)

	_, err := svc.Post("ramesh", "suresh", "secret", model.MessageModePrivate)
	require.NoError(t, err)

	forReceiver, err := svc.Feed(model.MessageModePrivate, "suresh", 0)
	require.NoError(t, err)
	assert.Len(t, forReceiver, 1)

	forStranger, err := svc.Feed(model.MessageModePrivate, "mahesh", 0)
	require.NoError(t, err)
	assert.Empty(t, forStranger)
}

func TestLikeReturnsUpdatedCount(t *testing.T) {
	repo := &memoryMessageRepo{}
	svc := NewMessageService(repo)

	message, err := svc.Post("ramesh", "", "like me", model.MessageModePublic)
	require.NoError(t, err)

	likes, err := svc.Like(message.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, likes)

	likes, err = svc.Like(message.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, likes)

	_, err = svc.Like(999)
	assert.Error(t, err)
}

func TestCommentsRequireExistingMessage(t *testing.T) {
	repo := &memoryMessageRepo{}
	svc := NewMessageService(repo)

	message, err := svc.Post("ramesh", "", "discuss", model.MessageModePublic)
	require.NoError(t, err)

	comment, err := svc.AddComment(message.ID, "suresh", "good point")
	require.NoError(t, err)
	assert.Equal(t, "suresh", comment.Commenter)

	_, err = svc.AddComment(999, "suresh", "orphan")
	assert.Error(t, err)

	_, err = svc.AddComment(message.ID, "suresh", "   ")
	assert.Error(t, err)

	comments, err := svc.ListComments(message.ID)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}
