package notify

import (
	"fmt"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"

	"github.com/codehive/swarmd/pkg/models"
)

const maxBlockTextLength = 2900

var statusEmoji = map[models.TicketStatus]string{
	models.TicketStatusBacklog:    ":inbox_tray:",
	models.TicketStatusInProgress: ":hammer_and_wrench:",
	models.TicketStatusReview:     ":mag:",
	models.TicketStatusApproved:   ":white_check_mark:",
	models.TicketStatusDone:       ":checkered_flag:",
	models.TicketStatusRejected:   ":x:",
}

var statusLabel = map[models.TicketStatus]string{
	models.TicketStatusBacklog:    "Ticket Returned to Backlog",
	models.TicketStatusInProgress: "Work Started",
	models.TicketStatusReview:     "Ready for Review",
	models.TicketStatusApproved:   "Ticket Approved",
	models.TicketStatusDone:       "Ticket Done",
	models.TicketStatusRejected:   "Ticket Rejected",
}

func ticketURL(ticketID, dashboardURL string) string {
	return fmt.Sprintf("%s/tickets/%s", dashboardURL, ticketID)
}

// BuildTransitionMessage creates Block Kit blocks for a status transition
// fired by a notify auto-action.
func BuildTransitionMessage(t *models.Ticket, ruleID, dashboardURL string) []goslack.Block {
	emoji := statusEmoji[t.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[t.Status]
	if label == "" {
		label = "Ticket " + string(t.Status)
	}

	headerText := fmt.Sprintf("%s *%s*\n%s (`%s`, rule `%s`)", emoji, label, t.Title, t.ID, ruleID)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	if t.Description != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(t.Description), false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Ticket", false, false))
	btn.URL = ticketURL(t.ID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildBreachMessage creates Block Kit blocks for an SLA breach rejection.
// The ticket ID in the text doubles as the thread marker the escalation
// notification searches for.
func BuildBreachMessage(t *models.Ticket, dashboardURL string) []goslack.Block {
	headerText := fmt.Sprintf(":rotating_light: *SLA Breached*\n%s (`%s`)", t.Title, t.ID)
	if t.SLA != nil && t.SLA.TargetMinutes > 0 {
		headerText += fmt.Sprintf("\nTarget was %d minutes. The ticket has been rejected (retry %d).", t.SLA.TargetMinutes, t.RetryCount)
	} else {
		headerText += fmt.Sprintf("\nThe ticket has been rejected (retry %d).", t.RetryCount)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Ticket", false, false))
	btn.URL = ticketURL(t.ID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildEscalationMessage creates Block Kit blocks for a freshly created
// escalation ticket.
func BuildEscalationMessage(t *models.Ticket, dashboardURL string) []goslack.Block {
	headerText := fmt.Sprintf(":arrow_heading_up: *Escalation Created*\n%s (`%s`)", t.Title, t.ID)
	if t.OriginalTicketID != "" {
		headerText += fmt.Sprintf("\nFollows up on `%s`.", t.OriginalTicketID)
	}

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	if t.Description != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(t.Description), false, false),
			nil, nil,
		))
	}

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Escalation", false, false))
	btn.URL = ticketURL(t.ID, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// truncateForSlack caps text at Slack's block limit, counting runes so a
// multi-byte character is never split.
func truncateForSlack(text string) string {
	if utf8.RuneCountInString(text) <= maxBlockTextLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated, full ticket in dashboard)_"
}
