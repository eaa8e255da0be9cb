package domain

import (
	"strings"
	"time"
)

type MessageKind string

const (
	MessageKindText           MessageKind = "text"
	MessageKindAttributedText MessageKind = "attributed_text"
	MessageKindPhoto          MessageKind = "photo"
	MessageKindVideo          MessageKind = "video"
	MessageKindLocation       MessageKind = "location"
	MessageKindEmoji          MessageKind = "emoji"
	MessageKindAudio          MessageKind = "audio"
	MessageKindContact        MessageKind = "contact"
	MessageKindCustom         MessageKind = "custom"
	MessageKindLinkPreview    MessageKind = "link_preview"
)

const (
	MinGrade = 9
	MaxGrade = 12

	MaxAnnouncementTitle = 75
	MaxAnnouncementBody  = 750
)

// User is the record stored at the user's safe email.
type User struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name,omitempty"`
	IsDean      bool   `json:"is_dean"`
	Grade       *int   `json:"grade,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
}

func (u User) LegalName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Name is what other users see: the display name when set, else the legal name.
func (u User) Name() string {
	if strings.TrimSpace(u.DisplayName) != "" {
		return u.DisplayName
	}
	return u.LegalName()
}

type DirectoryEntry struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email"`
}

func (d DirectoryEntry) Name() string {
	if strings.TrimSpace(d.DisplayName) != "" {
		return d.DisplayName
	}
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

type LatestMessage struct {
	Date    string `json:"date"`
	Message string `json:"message"`
	IsRead  bool   `json:"is_read"`
}

// ConversationEntry is one participant's denormalized view of a conversation.
// OtherUserEmails and OtherUserNames are parallel.
type ConversationEntry struct {
	ID               string        `json:"id"`
	OtherUserEmails  []string      `json:"other_user_emails"`
	OtherUserNames   []string      `json:"other_user_names"`
	ConversationName string        `json:"conversation_name"`
	LatestMessage    LatestMessage `json:"latest_message"`
}

type Message struct {
	ID          string      `json:"id"`
	Kind        MessageKind `json:"type"`
	Content     string      `json:"content"`
	Date        string      `json:"date"`
	SenderEmail string      `json:"sender_email"`
	SenderName  string      `json:"sender_name"`
	IsRead      bool        `json:"is_read"`
}

type Conversation struct {
	UserEmails []string  `json:"user_emails"`
	Messages   []Message `json:"messages"`
}

// MessageInput is what a sender supplies; the store fills in sender and date.
type MessageInput struct {
	ID      string      `json:"id" validate:"omitempty,pathkey"`
	Kind    MessageKind `json:"type" validate:"required"`
	Content string      `json:"content"`
	SentAt  time.Time   `json:"sent_at"`
}

type LatestAnnouncement struct {
	SentDate    string `json:"sent_date"`
	Title       string `json:"title"`
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
}

type Announcement struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	Attachments    string `json:"attachments,omitempty"`
	Grade          int    `json:"grade"`
	SentDate       string `json:"sent_date"`
	SenderEmail    string `json:"sender_email"`
	SenderName     string `json:"sender_name"`
	AnnouncementID string `json:"announcement_id"`
	Pinned         bool   `json:"pinned"`
}

func (a Announcement) Latest() LatestAnnouncement {
	return LatestAnnouncement{
		SentDate:    a.SentDate,
		Title:       a.Title,
		SenderName:  a.SenderName,
		SenderEmail: a.SenderEmail,
	}
}

type AnnouncementGrade struct {
	Grade              int                `json:"grade"`
	Announcements      []Announcement     `json:"announcements"`
	LatestAnnouncement LatestAnnouncement `json:"latest_announcement"`
}

type GradeSummary struct {
	Grade              int                `json:"grade"`
	LatestAnnouncement LatestAnnouncement `json:"latest_announcement"`
}

// AnnouncementDraft is what a dean submits; one Announcement is built per grade.
type AnnouncementDraft struct {
	Title       string `json:"title" validate:"required,max=75"`
	Body        string `json:"body" validate:"required,max=750"`
	Grades      []int  `json:"grades" validate:"required,min=1,dive,min=9,max=12"`
	Attachments string `json:"attachments" validate:"omitempty,url"`
}

type Registration struct {
	Email       string `json:"email" validate:"required,email,pathkey"`
	Password    string `json:"password" validate:"required,min=6"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	DisplayName string `json:"display_name"`
	IsDean      bool   `json:"is_dean"`
	Grade       *int   `json:"grade" validate:"omitempty,min=9,max=12"`
}
