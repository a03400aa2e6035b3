// Package session threads chat continuity through the job queue. History
// is derived from finished jobs rather than stored separately: the session
// table holds only metadata (title, last prompt, timestamps) and each
// exchange is already durable as a completed job carrying the session id.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/prompt"
	"github.com/codehive/swarmd/pkg/queue"
	"github.com/codehive/swarmd/pkg/store"
)

var _ queue.HistorySource = (*Manager)(nil)

// maxHistoryExchanges caps how many prior exchanges are threaded into a
// chat prompt. Older exchanges still exist as jobs; they just stop being
// quoted.
const maxHistoryExchanges = 20

// maxTitleRunes caps the session title derived from the first prompt.
const maxTitleRunes = 80

// Store is the slice of persistence the session manager needs.
type Store interface {
	store.JobStore
	store.SessionStore
}

// Manager implements the queue's HistorySource over the job and session
// stores.
type Manager struct {
	store  Store
	logger *slog.Logger
}

// NewManager creates a session manager over the given store.
func NewManager(st Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		logger: logger.With("component", "session"),
	}
}

// History returns the session's prior exchanges, oldest first, capped at
// the most recent maxHistoryExchanges. An exchange is a completed chat job
// carrying the session id; queued, running and failed jobs contribute
// nothing.
func (m *Manager) History(ctx context.Context, sessionID string) ([]prompt.Exchange, error) {
	jobs, err := m.store.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	var done []*models.Job
	for _, j := range jobs {
		if j.SessionID != sessionID || j.Status != models.JobStateCompleted {
			continue
		}
		if j.Mode != models.ModeChat || j.Result == nil {
			continue
		}
		done = append(done, j)
	}
	sort.Slice(done, func(i, k int) bool {
		if done[i].CreatedAt.Equal(done[k].CreatedAt) {
			return done[i].ID < done[k].ID
		}
		return done[i].CreatedAt.Before(done[k].CreatedAt)
	})
	if len(done) > maxHistoryExchanges {
		done = done[len(done)-maxHistoryExchanges:]
	}

	history := make([]prompt.Exchange, 0, len(done))
	for _, j := range done {
		history = append(history, prompt.Exchange{
			Prompt: j.Prompt,
			Answer: j.Result.FinalOutput,
		})
	}
	return history, nil
}

// Append upserts the session record after a chat exchange finishes. The
// answer itself is not copied anywhere: History reads finished jobs, so
// the exchange is already durable once the worker settles the job. The
// title is derived from the first prompt and never changes afterwards.
func (m *Manager) Append(ctx context.Context, sessionID, promptText, answer string) error {
	now := time.Now().UTC()

	s, err := m.store.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s = &models.Session{
			ID:        sessionID,
			Title:     titleFromPrompt(promptText),
			Mode:      models.ModeChat,
			CreatedAt: now,
		}
	case err != nil:
		return err
	}

	s.LastPrompt = promptText
	s.UpdatedAt = now
	if err := m.store.PutSession(ctx, s); err != nil {
		return err
	}
	m.logger.Debug("Session updated", "session_id", sessionID)
	return nil
}

// titleFromPrompt takes the first line of the prompt, capped at
// maxTitleRunes without splitting a multi-byte character.
func titleFromPrompt(promptText string) string {
	title := strings.TrimSpace(promptText)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > maxTitleRunes {
		title = string(runes[:maxTitleRunes-1]) + "…"
	}
	return title
}
