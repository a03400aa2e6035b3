// Package notify delivers ticket engine events to Slack. Delivery is
// fail-open everywhere: a Slack outage is logged and never surfaces as an
// error to the engine.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/ticket"
)

var _ ticket.Notifier = (*Service)(nil)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service posts ticket notifications: rule-driven notify auto-actions, SLA
// breach rejections and escalation ticket creation.
// Nil-safe: all methods are no-ops when the service is nil.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

// NewService creates a Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify"),
		seen:         make(map[string]bool),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify"),
		seen:         make(map[string]bool),
	}
}

// NotifyTransition posts a message for a transition whose rule carries a
// notify auto-action. Fail-open: errors are logged, never returned.
func (s *Service) NotifyTransition(ctx context.Context, t *models.Ticket, ruleID string) error {
	if s == nil {
		return nil
	}
	blocks := BuildTransitionMessage(t, ruleID, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send Slack transition notification",
			"ticket_id", t.ID,
			"rule", ruleID,
			"error", err)
	}
	return nil
}

// Observer returns the callback to register with the ticket manager's
// OnUpdate. It watches the change stream for SLA breach rejections and
// freshly created escalation tickets, the two engine moves that happen
// without a rule firing. Posting runs in the background: observers are
// called inside engine operations and must not stall them.
func (s *Service) Observer() func(*models.Ticket) {
	if s == nil {
		return nil
	}
	return func(t *models.Ticket) {
		if rec, ok := breachRecord(t); ok {
			if s.markSeen("breach/" + t.ID + "/" + rec.Timestamp.UTC().Format(time.RFC3339Nano)) {
				go s.notifyBreach(context.Background(), t)
			}
			return
		}
		if isNewEscalation(t) && s.markSeen("escalation/"+t.ID) {
			go s.notifyEscalation(context.Background(), t)
		}
	}
}

func (s *Service) notifyBreach(ctx context.Context, t *models.Ticket) {
	blocks := BuildBreachMessage(t, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("Failed to send Slack SLA breach notification",
			"ticket_id", t.ID,
			"error", err)
	}
}

// notifyEscalation threads the message under the breach notification for
// the original ticket when one is found in recent channel history.
func (s *Service) notifyEscalation(ctx context.Context, t *models.Ticket) {
	var threadTS string
	if t.OriginalTicketID != "" {
		var err error
		threadTS, err = s.client.FindThread(ctx, t.OriginalTicketID)
		if err != nil {
			s.logger.Warn("Failed to find Slack thread for escalation",
				"ticket_id", t.ID,
				"original_ticket_id", t.OriginalTicketID,
				"error", err)
		}
	}
	blocks := BuildEscalationMessage(t, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("Failed to send Slack escalation notification",
			"ticket_id", t.ID,
			"error", err)
	}
}

// markSeen records the key and reports whether it was new. The manager
// broadcasts every change to a ticket, so an already-rejected ticket can be
// observed again; each breach and escalation posts once.
func (s *Service) markSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	return true
}

// breachRecord returns the approval record of an SLA rejection. The engine
// rejects breached tickets under the system actor; a human rejection
// carries the actor's own email and does not match.
func breachRecord(t *models.Ticket) (models.ApprovalRecord, bool) {
	if t.Status != models.TicketStatusRejected || len(t.ApprovalHistory) == 0 {
		return models.ApprovalRecord{}, false
	}
	last := t.ApprovalHistory[len(t.ApprovalHistory)-1]
	if last.Action != string(models.TicketStatusRejected) || last.ActorEmail != ticket.SystemActor.Email {
		return models.ApprovalRecord{}, false
	}
	return last, true
}

// isNewEscalation reports whether the observed ticket is an escalation on
// its first broadcast. Creation is the only write that leaves UpdatedAt
// equal to CreatedAt.
func isNewEscalation(t *models.Ticket) bool {
	return t.Type == models.TicketTypeEscalation && t.UpdatedAt.Equal(t.CreatedAt)
}
