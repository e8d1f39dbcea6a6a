package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

func newTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models...))
	return db
}

func TestChatHistoryAppendAndLoadAll(t *testing.T) {
	db := newTestDB(t, &model.ChatRecord{})
	repo := NewChatHistoryRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	turns := []struct {
		topic string
		turn  model.Turn
	}{
		{"Soil Management", model.Turn{Timestamp: base, Question: "q1", Answer: "a1"}},
		{"Pest Control", model.Turn{Timestamp: base.Add(time.Minute), Question: "q2", Answer: "a2"}},
		{"Soil Management", model.Turn{Timestamp: base.Add(2 * time.Minute), Question: "q3", Answer: "a3"}},
	}
	for _, item := range turns {
		require.NoError(t, repo.Append(ctx, "ramesh", item.topic, item.turn))
	}
	// 别的用户的记录不应混进来
	require.NoError(t, repo.Append(ctx, "suresh", "Other Topic", model.Turn{Timestamp: base, Question: "x", Answer: "y"}))

	topics := repo.LoadAll(ctx, "ramesh")
	require.Len(t, topics, 2)

	// 话题按首次出现顺序归组，交错写入不打乱分组
	assert.Equal(t, "Soil Management", topics[0].Name)
	assert.Equal(t, "Pest Control", topics[1].Name)
	require.Len(t, topics[0].Turns, 2)
	assert.Equal(t, "q1", topics[0].Turns[0].Question)
	assert.Equal(t, "q3", topics[0].Turns[1].Question)
	require.Len(t, topics[1].Turns, 1)
	assert.Equal(t, "a2", topics[1].Turns[0].Answer)

	// 秒精度的时间戳往返读取不产生偏差
	assert.True(t, topics[0].Turns[0].Timestamp.Equal(base))
	assert.True(t, topics[0].Turns[1].Timestamp.Equal(base.Add(2*time.Minute)))
	assert.True(t, topics[1].Turns[0].Timestamp.Equal(base.Add(time.Minute)))
}

func TestChatHistoryLoadAllEmptyUser(t *testing.T) {
	db := newTestDB(t, &model.ChatRecord{})
	repo := NewChatHistoryRepository(db)

	topics := repo.LoadAll(context.Background(), "nobody")
	assert.Empty(t, topics)
}
