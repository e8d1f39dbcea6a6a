package repository

import (
	"testing"

	"amazing-kissan-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMessage(t *testing.T, repo MessageRepository, mode, sender, receiver, text string) *model.Message {
	t.Helper()
	message := &model.Message{Mode: mode, Sender: sender, Receiver: receiver, Message: text}
	require.NoError(t, repo.Create(message))
	return message
}

func TestMessageVisibilityByMode(t *testing.T) {
	db := newTestDB(t, &model.Message{}, &model.Comment{})
	repo := NewMessageRepository(db)

	seedMessage(t, repo, model.MessageModePublic, "ramesh", "", "hello all")
	seedMessage(t, repo, model.MessageModePrivate, "ramesh", "suresh", "just for you")

	public, err := repo.ListByMode(model.MessageModePublic, "mahesh")
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, "hello all", public[0].Message)

	// 私信只对发送方和接收方可见
	forSender, err := repo.ListByMode(model.MessageModePrivate, "ramesh")
	require.NoError(t, err)
	assert.Len(t, forSender, 1)

	forStranger, err := repo.ListByMode(model.MessageModePrivate, "mahesh")
	require.NoError(t, err)
	assert.Empty(t, forStranger)
}

func TestMessageListAfterCursor(t *testing.T) {
	db := newTestDB(t, &model.Message{}, &model.Comment{})
	repo := NewMessageRepository(db)

	first := seedMessage(t, repo, model.MessageModePublic, "ramesh", "", "first")
	seedMessage(t, repo, model.MessageModePublic, "suresh", "", "second")

	fresh, err := repo.ListAfter(model.MessageModePublic, "ramesh", first.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "second", fresh[0].Message)
}

func TestIncrementLikesIsCumulative(t *testing.T) {
	db := newTestDB(t, &model.Message{}, &model.Comment{})
	repo := NewMessageRepository(db)

	message := seedMessage(t, repo, model.MessageModePublic, "ramesh", "", "like me")
	require.NoError(t, repo.IncrementLikes(message.ID))
	require.NoError(t, repo.IncrementLikes(message.ID))

	reloaded, err := repo.FindByID(message.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Likes)
}

func TestCommentsRoundTrip(t *testing.T) {
	db := newTestDB(t, &model.Message{}, &model.Comment{})
	repo := NewMessageRepository(db)

	message := seedMessage(t, repo, model.MessageModePublic, "ramesh", "", "discuss")
	require.NoError(t, repo.CreateComment(&model.Comment{
		MessageID: message.ID,
		Commenter: "suresh",
		Comment:   "good point",
	}))

	comments, err := repo.ListComments(message.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "suresh", comments[0].Commenter)

	none, err := repo.ListComments(999)
	require.NoError(t, err)
	assert.Empty(t, none)
}
