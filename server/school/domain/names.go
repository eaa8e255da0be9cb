package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout renders dates as a medium date plus a long time, e.g.
// "Jul 24, 2023 at 3:04:05 PM PDT".
const DateLayout = "Jan 2, 2006 at 3:04:05 PM MST"

var safeEmailReplacer = strings.NewReplacer(".", "-", "@", "-", "/", "-")

// SafeEmail turns an email into a single path segment: lowercase with '.',
// '@' and '/' as '-'.
func SafeEmail(email string) string {
	return safeEmailReplacer.Replace(strings.ToLower(strings.TrimSpace(email)))
}

// ValidKey reports whether s can be used as one store path segment.
func ValidKey(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.Contains(s, "/")
}

func FormatNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + ", " + names[1]
	default:
		return fmt.Sprintf("%s, %s + %d more", names[0], names[1], len(names)-2)
	}
}

func FormatGrade(grade int) string {
	switch grade {
	case 9:
		return "Freshman"
	case 10:
		return "Sophomore"
	case 11:
		return "Junior"
	case 12:
		return "Senior"
	default:
		return "Unknown"
	}
}

func ValidGrade(grade int) bool {
	return grade >= MinGrade && grade <= MaxGrade
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func AnnouncementID(grade int, safeEmail, date string) string {
	return fmt.Sprintf("grade_%d_announcement_%s_%s", grade, safeEmail, date)
}

func ConversationID(firstMessageID string) string {
	return "conversation_" + firstMessageID
}

// Summary is the text shown as a conversation's latest message. Media kinds
// surface their URL or coordinates; kinds without a text form are empty.
func (m MessageInput) Summary() string {
	switch m.Kind {
	case MessageKindText, MessageKindPhoto, MessageKindVideo, MessageKindLocation:
		return m.Content
	default:
		return ""
	}
}
