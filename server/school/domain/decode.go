package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeFailure describes one stored record that did not match its schema.
// The record is left out of the decoded sequence.
type DecodeFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type wireLatestMessage struct {
	Date    *string `json:"date" validate:"required"`
	Message *string `json:"message" validate:"required"`
	IsRead  *bool   `json:"is_read" validate:"required"`
}

type wireConversationEntry struct {
	ID               *string            `json:"id" validate:"required"`
	OtherUserEmails  []string           `json:"other_user_emails" validate:"required"`
	OtherUserNames   []string           `json:"other_user_names" validate:"required"`
	ConversationName *string            `json:"conversation_name" validate:"required"`
	LatestMessage    *wireLatestMessage `json:"latest_message" validate:"required"`
}

type wireMessage struct {
	ID          *string `json:"id" validate:"required"`
	Kind        *string `json:"type" validate:"required"`
	Content     *string `json:"content" validate:"required"`
	Date        *string `json:"date" validate:"required"`
	SenderEmail *string `json:"sender_email" validate:"required"`
	SenderName  *string `json:"sender_name" validate:"required"`
	IsRead      *bool   `json:"is_read" validate:"required"`
}

type wireLatestAnnouncement struct {
	SentDate    *string `json:"sent_date" validate:"required"`
	Title       *string `json:"title" validate:"required"`
	SenderName  *string `json:"sender_name" validate:"required"`
	SenderEmail *string `json:"sender_email" validate:"required"`
}

type wireGradeSummary struct {
	Grade              *int                    `json:"grade" validate:"required"`
	LatestAnnouncement *wireLatestAnnouncement `json:"latest_announcement" validate:"required"`
}

type wireAnnouncement struct {
	Title          *string `json:"title" validate:"required"`
	Body           *string `json:"body" validate:"required"`
	Attachments    *string `json:"attachments"`
	Grade          *int    `json:"grade" validate:"required"`
	SentDate       *string `json:"sent_date" validate:"required"`
	SenderEmail    *string `json:"sender_email" validate:"required"`
	SenderName     *string `json:"sender_name" validate:"required"`
	AnnouncementID *string `json:"announcement_id" validate:"required"`
	Pinned         *bool   `json:"pinned" validate:"required"`
}

type wireDirectoryEntry struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email" validate:"required"`
}

func decodeList[W any, T any](raw any, convert func(W) (T, error)) ([]T, []DecodeFailure, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: expected a list, got %T", ErrFetchFailed, raw)
	}
	out := make([]T, 0, len(items))
	var failures []DecodeFailure
	for i, item := range items {
		record, err := decodeRecord(item, convert)
		if err != nil {
			failures = append(failures, DecodeFailure{Index: i, Reason: err.Error()})
			continue
		}
		out = append(out, record)
	}
	return out, failures, nil
}

func decodeRecord[W any, T any](item any, convert func(W) (T, error)) (T, error) {
	var zero T
	if item == nil {
		return zero, errors.New("record is empty")
	}
	b, err := json.Marshal(item)
	if err != nil {
		return zero, err
	}
	var w W
	if err := json.Unmarshal(b, &w); err != nil {
		return zero, err
	}
	if err := validate.Struct(w); err != nil {
		return zero, errors.New(describe(err))
	}
	return convert(w)
}

func DecodeConversationEntries(raw any) ([]ConversationEntry, []DecodeFailure, error) {
	return decodeList(raw, func(w wireConversationEntry) (ConversationEntry, error) {
		if len(w.OtherUserEmails) != len(w.OtherUserNames) {
			return ConversationEntry{}, errors.New("other_user_emails and other_user_names differ in length")
		}
		return ConversationEntry{
			ID:               *w.ID,
			OtherUserEmails:  w.OtherUserEmails,
			OtherUserNames:   w.OtherUserNames,
			ConversationName: *w.ConversationName,
			LatestMessage: LatestMessage{
				Date:    *w.LatestMessage.Date,
				Message: *w.LatestMessage.Message,
				IsRead:  *w.LatestMessage.IsRead,
			},
		}, nil
	})
}

func DecodeMessages(raw any) ([]Message, []DecodeFailure, error) {
	return decodeList(raw, func(w wireMessage) (Message, error) {
		return Message{
			ID:          *w.ID,
			Kind:        MessageKind(*w.Kind),
			Content:     *w.Content,
			Date:        *w.Date,
			SenderEmail: *w.SenderEmail,
			SenderName:  *w.SenderName,
			IsRead:      *w.IsRead,
		}, nil
	})
}

func DecodeGradeSummaries(raw any) ([]GradeSummary, []DecodeFailure, error) {
	return decodeList(raw, func(w wireGradeSummary) (GradeSummary, error) {
		l := w.LatestAnnouncement
		return GradeSummary{
			Grade: *w.Grade,
			LatestAnnouncement: LatestAnnouncement{
				SentDate:    *l.SentDate,
				Title:       *l.Title,
				SenderName:  *l.SenderName,
				SenderEmail: *l.SenderEmail,
			},
		}, nil
	})
}

func DecodeAnnouncements(raw any) ([]Announcement, []DecodeFailure, error) {
	return decodeList(raw, func(w wireAnnouncement) (Announcement, error) {
		a := Announcement{
			Title:          *w.Title,
			Body:           *w.Body,
			Grade:          *w.Grade,
			SentDate:       *w.SentDate,
			SenderEmail:    *w.SenderEmail,
			SenderName:     *w.SenderName,
			AnnouncementID: *w.AnnouncementID,
			Pinned:         *w.Pinned,
		}
		if w.Attachments != nil {
			a.Attachments = *w.Attachments
		}
		return a, nil
	})
}

func DecodeDirectory(raw any) ([]DirectoryEntry, []DecodeFailure, error) {
	return decodeList(raw, func(w wireDirectoryEntry) (DirectoryEntry, error) {
		return DirectoryEntry{
			FirstName:   deref(w.FirstName),
			LastName:    deref(w.LastName),
			DisplayName: deref(w.DisplayName),
			Email:       *w.Email,
		}, nil
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
