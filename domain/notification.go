package domain

import "fmt"

// Notification kinds. Tickets come from the support desk, tasks from the
// admin board.
const (
	KindTask   = "task"
	KindTicket = "ticket"
)

// Unassigned is the sentinel an assignee field is set to when it is cleared.
const Unassigned = "unassigned"

const (
	ticketTitleLimit = 80
	taskTitleLimit   = 100
)

// AssignmentNotification is an ephemeral request to notify a user that
// something was assigned to them. It is produced by the workflow, consumed
// once by the dispatcher and never persisted.
type AssignmentNotification struct {
	Kind       string `json:"kind"`
	AssigneeID string `json:"assigneeId"`
	Title      string `json:"title"`
	Identifier string `json:"identifier,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

// ComposeMessage renders the SMS body for a notification.
func ComposeMessage(n AssignmentNotification) string {
	switch n.Kind {
	case KindTicket:
		return fmt.Sprintf("Ticket %s assigned to you: %s - %s",
			n.Identifier, TicketPriorityLabel(n.Priority), truncate(n.Title, ticketTitleLimit))
	default:
		title := truncate(n.Title, taskTitleLimit)
		if label := TaskPriorityLabel(n.Priority); label != "" {
			return fmt.Sprintf("Task assigned to you (%s): %s", label, title)
		}
		return fmt.Sprintf("Task assigned to you: %s", title)
	}
}

// TicketPriorityLabel maps a ticket priority onto the P1..P4 scale.
func TicketPriorityLabel(priority string) string {
	switch priority {
	case "critical":
		return "P1"
	case "high":
		return "P2"
	case "medium":
		return "P3"
	default:
		return "P4"
	}
}

// TaskPriorityLabel returns the urgency label for a task notification, or
// the empty string when the priority carries no label.
func TaskPriorityLabel(priority string) string {
	switch priority {
	case PriorityUrgent:
		return "URGENT"
	case PriorityHigh:
		return "HIGH"
	default:
		return ""
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
