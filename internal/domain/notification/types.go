// Package notification holds the notification records delivered to portal subjects.
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification for display.
type Kind string

const (
	KindInfo        Kind = "info"
	KindSuccess     Kind = "success"
	KindWarning     Kind = "warning"
	KindError       Kind = "error"
	KindBooking     Kind = "booking"
	KindQuiz        Kind = "quiz"
	KindMaintenance Kind = "maintenance"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindSuccess, KindWarning, KindError, KindBooking, KindQuiz, KindMaintenance:
		return true
	default:
		return false
	}
}

// Priority orders notifications by urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// Notification is one row of the notifications table as seen by its recipient.
type Notification struct {
	ID           string     `json:"id"                      db:"id"`
	SubjectID    string     `json:"user_id"                 db:"user_id"`
	Title        string     `json:"title"                   db:"title"`
	Message      string     `json:"message"                 db:"message"`
	Kind         Kind       `json:"type"                    db:"type"`
	Priority     Priority   `json:"priority"                db:"priority"`
	RelatedTable *string    `json:"related_table,omitempty" db:"related_table"`
	RelatedID    *string    `json:"related_id,omitempty"    db:"related_id"`
	Read         bool       `json:"is_read"                 db:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty"       db:"read_at"`
	CreatedAt    time.Time  `json:"created_at"              db:"created_at"`
}

// NewNotification validates a decoded notification record.
func NewNotification(n Notification) (Notification, error) {
	if strings.TrimSpace(n.ID) == "" {
		return Notification{}, errors.New("notification id is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return Notification{}, errors.New("notification title is required")
	}
	if n.Kind == "" {
		n.Kind = KindInfo
	}
	if !n.Kind.Valid() {
		return Notification{}, fmt.Errorf("invalid notification type %q", n.Kind)
	}
	if n.Priority == "" {
		n.Priority = PriorityNormal
	}
	if !n.Priority.Valid() {
		return Notification{}, fmt.Errorf("invalid notification priority %q", n.Priority)
	}
	return n, nil
}

// Payload is what a producer sends to create a notification.
type Payload struct {
	SubjectID    string
	Title        string
	Message      string
	Kind         Kind
	Priority     Priority
	RelatedTable *string
	RelatedID    *string
}

// NewPayload applies defaults and validates a payload. Priority defaults to normal.
func NewPayload(subjectID, title, message string, kind Kind) (Payload, error) {
	p := Payload{
		SubjectID: strings.TrimSpace(subjectID),
		Title:     strings.TrimSpace(title),
		Message:   message,
		Kind:      kind,
		Priority:  PriorityNormal,
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Validate checks the payload can be inserted.
func (p Payload) Validate() error {
	if !ValidSubjectID(p.SubjectID) {
		return fmt.Errorf("invalid subject id %q", p.SubjectID)
	}
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("invalid notification type %q", p.Kind)
	}
	if p.Priority != "" && !p.Priority.Valid() {
		return fmt.Errorf("invalid notification priority %q", p.Priority)
	}
	return nil
}

// ValidSubjectID reports whether id is a canonical hyphenated UUID.
func ValidSubjectID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

const channelPrefix = "notifications-channel-for-"

// ChannelKey returns the push channel name for a subject.
func ChannelKey(subjectID string) string {
	return channelPrefix + subjectID
}

// Filter returns the row filter scoping push events to a subject.
func Filter(subjectID string) string {
	return "user_id=eq." + subjectID
}

// ParseFilter extracts the subject id from a "user_id=eq.<id>" filter.
func ParseFilter(filter string) (string, error) {
	field, rest, ok := strings.Cut(filter, "=")
	if !ok || field != "user_id" {
		return "", fmt.Errorf("unsupported filter %q", filter)
	}
	value, found := strings.CutPrefix(rest, "eq.")
	if !found || !ValidSubjectID(value) {
		return "", fmt.Errorf("unsupported filter %q", filter)
	}
	return value, nil
}

// Decode parses a pushed row payload and validates it.
func Decode(payload []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return Notification{}, fmt.Errorf("decode notification: %w", err)
	}
	return NewNotification(n)
}

// UnreadCount counts notifications not yet read.
func UnreadCount(list []Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}
