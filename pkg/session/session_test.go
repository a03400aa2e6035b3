package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedJob(t *testing.T, st *memory.Store, j *models.Job) {
	t.Helper()
	require.NoError(t, st.PutJob(context.Background(), j))
}

func chatJob(id, sessionID, promptText, answer string, created time.Time) *models.Job {
	return &models.Job{
		ID:        id,
		SessionID: sessionID,
		Prompt:    promptText,
		Mode:      models.ModeChat,
		Status:    models.JobStateCompleted,
		Result:    &models.SwarmResult{FinalOutput: answer},
		CreatedAt: created,
	}
}

func TestHistory(t *testing.T) {
	st := memory.New()
	m := NewManager(st, testLogger())
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	seedJob(t, st, chatJob("job-2", "sess-1", "And in Go?", "Use channels.", base.Add(time.Hour)))
	seedJob(t, st, chatJob("job-1", "sess-1", "How do workers talk?", "Over a queue.", base))
	// None of these contribute: wrong session, not completed, not chat,
	// completed but resultless.
	seedJob(t, st, chatJob("job-3", "sess-2", "Other session", "Nope.", base))
	seedJob(t, st, &models.Job{
		ID: "job-4", SessionID: "sess-1", Prompt: "Still running",
		Mode: models.ModeChat, Status: models.JobStateRunning, CreatedAt: base,
	})
	seedJob(t, st, &models.Job{
		ID: "job-5", SessionID: "sess-1", Prompt: "Swarm run",
		Mode: models.ModeSwarm, Status: models.JobStateCompleted,
		Result: &models.SwarmResult{FinalOutput: "big report"}, CreatedAt: base,
	})
	seedJob(t, st, &models.Job{
		ID: "job-6", SessionID: "sess-1", Prompt: "No result",
		Mode: models.ModeChat, Status: models.JobStateCompleted, CreatedAt: base,
	})

	history, err := m.History(context.Background(), "sess-1")
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.Equal(t, "How do workers talk?", history[0].Prompt, "oldest exchange first")
	assert.Equal(t, "Over a queue.", history[0].Answer)
	assert.Equal(t, "And in Go?", history[1].Prompt)
}

func TestHistoryEmptySession(t *testing.T) {
	m := NewManager(memory.New(), testLogger())

	history, err := m.History(context.Background(), "sess-ghost")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryCapsOldExchanges(t *testing.T) {
	st := memory.New()
	m := NewManager(st, testLogger())
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	for i := 0; i < maxHistoryExchanges+5; i++ {
		seedJob(t, st, chatJob(
			fmt.Sprintf("job-%02d", i),
			"sess-1",
			fmt.Sprintf("question %d", i),
			fmt.Sprintf("answer %d", i),
			base.Add(time.Duration(i)*time.Minute),
		))
	}

	history, err := m.History(context.Background(), "sess-1")
	require.NoError(t, err)

	require.Len(t, history, maxHistoryExchanges)
	assert.Equal(t, "question 5", history[0].Prompt, "the five oldest fall off")
	assert.Equal(t, fmt.Sprintf("question %d", maxHistoryExchanges+4), history[len(history)-1].Prompt)
}

func TestAppend(t *testing.T) {
	st := memory.New()
	m := NewManager(st, testLogger())
	ctx := context.Background()

	require.NoError(t, m.Append(ctx, "sess-1", "How do workers talk?\nDetails follow.", "Over a queue."))

	s, err := st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "How do workers talk?", s.Title, "title is the first prompt line")
	assert.Equal(t, models.ModeChat, s.Mode)
	assert.Equal(t, "How do workers talk?\nDetails follow.", s.LastPrompt)
	assert.False(t, s.CreatedAt.IsZero())

	created := s.CreatedAt
	require.NoError(t, m.Append(ctx, "sess-1", "And in Go?", "Use channels."))

	s, err = st.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "How do workers talk?", s.Title, "title never changes after the first exchange")
	assert.Equal(t, "And in Go?", s.LastPrompt)
	assert.True(t, s.CreatedAt.Equal(created))
	assert.False(t, s.UpdatedAt.Before(created))
}

func TestTitleFromPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   string
	}{
		{"single line", "Fix the login bug", "Fix the login bug"},
		{"first line only", "Fix the login bug\nwith full repro steps", "Fix the login bug"},
		{"surrounding whitespace trimmed", "  Fix the login bug  \nmore", "Fix the login bug"},
		{"empty prompt", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titleFromPrompt(tt.prompt))
		})
	}

	t.Run("long title truncated on a rune boundary", func(t *testing.T) {
		got := titleFromPrompt(strings.Repeat("日", maxTitleRunes+20))
		assert.Equal(t, maxTitleRunes, utf8.RuneCountInString(got))
		assert.True(t, strings.HasSuffix(got, "…"))
		assert.True(t, utf8.ValidString(got))
	})
}
