package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

var errEntryMissing = errors.New("conversation entry missing")

type ConversationService struct {
	store       docstore.Store
	sessions    *SessionService
	events      EventPublisher
	guard       MessageGuard
	fanoutLimit int
	now         func() time.Time
}

func NewConversationService(store docstore.Store, sessions *SessionService, events EventPublisher, guard MessageGuard, fanoutLimit int) *ConversationService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		store:       store,
		sessions:    sessions,
		events:      events,
		guard:       guard,
		fanoutLimit: fanoutLimit,
		now:         time.Now,
	}
}

type CreateConversationResult struct {
	ID     string       `json:"id"`
	Report FanoutReport `json:"report"`
}

func (s *ConversationService) prepareMessage(m domain.MessageInput) (domain.MessageInput, error) {
	if err := domain.ValidateMessage(m); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SentAt.IsZero() {
		m.SentAt = s.now()
	}
	return m, nil
}

func checkConversationID(id string) error {
	if !domain.ValidKey(id) {
		return fmt.Errorf("%w: conversation id %q", domain.ErrInvalidInput, id)
	}
	return nil
}

func checkParticipants(actor string, otherEmails, otherNames []string) ([]string, error) {
	if len(otherEmails) == 0 || len(otherEmails) != len(otherNames) {
		return nil, fmt.Errorf("%w: other emails and names must be non-empty and parallel", domain.ErrInvalidInput)
	}
	others := safeEmails(otherEmails)
	seen := map[string]struct{}{actor: {}}
	for _, e := range others {
		if e == "" {
			return nil, fmt.Errorf("%w: empty participant email", domain.ErrInvalidInput)
		}
		if _, dup := seen[e]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", domain.ErrInvalidInput, e)
		}
		seen[e] = struct{}{}
	}
	return others, nil
}

func storedMessage(m domain.MessageInput, senderEmail, senderName string) domain.Message {
	return domain.Message{
		ID:          m.ID,
		Kind:        m.Kind,
		Content:     m.Content,
		Date:        domain.FormatDate(m.SentAt),
		SenderEmail: senderEmail,
		SenderName:  senderName,
		IsRead:      false,
	}
}

// recipientEntry is the index entry seen by others[i]: the actor first, then
// every other participant except the recipient.
func recipientEntry(id string, i int, actorEmail, actorName string, others, names []string, latest domain.LatestMessage) domain.ConversationEntry {
	emails := without(others, i, actorEmail)
	peerNames := without(names, i, actorName)
	return domain.ConversationEntry{
		ID:               id,
		OtherUserEmails:  emails,
		OtherUserNames:   peerNames,
		ConversationName: domain.FormatNames(peerNames),
		LatestMessage:    latest,
	}
}

func findEntry(list []any, id string) int {
	for i, item := range list {
		if entryID, _ := asMap(item)["id"].(string); entryID == id {
			return i
		}
	}
	return -1
}

// upsertEntry replaces the entry with the same id or appends it.
func upsertEntry(entry domain.ConversationEntry) docstore.UpdateFunc {
	return func(current any) (any, error) {
		normalized, err := docstore.Normalize(entry)
		if err != nil {
			return nil, err
		}
		list := asList(current)
		if i := findEntry(list, entry.ID); i >= 0 {
			list[i] = normalized
			return list, nil
		}
		return append(list, normalized), nil
	}
}

// touchEntry sets latest_message on an existing entry, or appends fallback
// when the participant has no entry for the conversation yet.
func touchEntry(fallback domain.ConversationEntry) docstore.UpdateFunc {
	return func(current any) (any, error) {
		list := asList(current)
		if i := findEntry(list, fallback.ID); i >= 0 {
			latest, err := docstore.Normalize(fallback.LatestMessage)
			if err != nil {
				return nil, err
			}
			entry := asMap(list[i])
			entry["latest_message"] = latest
			list[i] = entry
			return list, nil
		}
		return upsertEntry(fallback)(list)
	}
}

func (s *ConversationService) CreateConversation(ctx context.Context, sess *domain.Session, otherEmails, otherNames []string, first domain.MessageInput) (CreateConversationResult, error) {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return CreateConversationResult{}, err
	}
	actorEmail := sess.SafeEmail()
	others, err := checkParticipants(actorEmail, otherEmails, otherNames)
	if err != nil {
		return CreateConversationResult{}, err
	}
	first, err = s.prepareMessage(first)
	if err != nil {
		return CreateConversationResult{}, err
	}
	actor, err := loadUser(ctx, s.store, actorEmail)
	if err != nil {
		return CreateConversationResult{}, err
	}
	actorName := actor.Name()
	id := domain.ConversationID(first.ID)
	date := domain.FormatDate(first.SentAt)
	if _, err := s.store.Get(ctx, conversationPath(id)); err == nil {
		return CreateConversationResult{}, fmt.Errorf("%w: conversation %s", domain.ErrAlreadyExists, id)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return CreateConversationResult{}, fetchError("conversation "+id, err)
	}

	entries := map[string]domain.ConversationEntry{
		actorEmail: {
			ID:               id,
			OtherUserEmails:  others,
			OtherUserNames:   otherNames,
			ConversationName: domain.FormatNames(otherNames),
			LatestMessage:    domain.LatestMessage{Date: date, Message: first.Summary(), IsRead: true},
		},
	}
	for i, recipient := range others {
		entries[recipient] = recipientEntry(id, i, actorEmail, actorName, others, otherNames,
			domain.LatestMessage{Date: date, Message: first.Summary(), IsRead: false})
	}

	participants := append([]string{actorEmail}, others...)
	report := fanout(ctx, s.fanoutLimit, participants, func(ctx context.Context, p string) error {
		return s.store.Update(ctx, indexPath(p), upsertEntry(entries[p]))
	})

	body := domain.Conversation{
		UserEmails: append(append([]string(nil), others...), actorEmail),
		Messages:   []domain.Message{storedMessage(first, actorEmail, actorName)},
	}
	err = s.store.Update(ctx, conversationPath(id), func(current any) (any, error) {
		if current != nil {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrAlreadyExists, id)
		}
		return body, nil
	})
	if err != nil {
		commonlog.Errorf("event=conversation_create status=failed conversation_id=%s error=%v", id, err)
		return CreateConversationResult{ID: id, Report: report}, fmt.Errorf("write conversation %s: %w", id, err)
	}
	if !report.OK() {
		commonlog.Warnf("event=conversation_create status=partial conversation_id=%s failures=%d", id, len(report.Failures()))
	} else {
		commonlog.Infof("event=conversation_create status=ok conversation_id=%s participants=%d", id, len(participants))
	}
	publish(ctx, s.events, EventConversationCreated, map[string]any{
		"conversation_id": id,
		"sender_email":    actorEmail,
		"user_emails":     body.UserEmails,
	})
	return CreateConversationResult{ID: id, Report: report}, nil
}

func (s *ConversationService) ListConversations(ctx context.Context, sess *domain.Session) (Snapshot[domain.ConversationEntry], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return Snapshot[domain.ConversationEntry]{}, err
	}
	return readSnapshot(ctx, s.store, indexPath(sess.SafeEmail()), domain.DecodeConversationEntries)
}

func (s *ConversationService) WatchConversations(ctx context.Context, sess *domain.Session) (<-chan Snapshot[domain.ConversationEntry], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return nil, err
	}
	return watch(ctx, s.store, indexPath(sess.SafeEmail()), domain.DecodeConversationEntries)
}

func (s *ConversationService) ListMessages(ctx context.Context, sess *domain.Session, conversationID string) (Snapshot[domain.Message], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return Snapshot[domain.Message]{}, err
	}
	if err := checkConversationID(conversationID); err != nil {
		return Snapshot[domain.Message]{}, err
	}
	return readSnapshot(ctx, s.store, messagesPath(conversationID), domain.DecodeMessages)
}

func (s *ConversationService) WatchMessages(ctx context.Context, sess *domain.Session, conversationID string) (<-chan Snapshot[domain.Message], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return nil, err
	}
	if err := checkConversationID(conversationID); err != nil {
		return nil, err
	}
	return watch(ctx, s.store, messagesPath(conversationID), domain.DecodeMessages)
}

// AppendMessage adds m to the conversation, then refreshes the sender's index
// entry, then every recipient's. The sender step must succeed before any
// recipient is touched; recipient outcomes are reported individually.
func (s *ConversationService) AppendMessage(ctx context.Context, sess *domain.Session, conversationID string, otherEmails, otherNames []string, m domain.MessageInput) (FanoutReport, error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return FanoutReport{}, err
	}
	if err := checkConversationID(conversationID); err != nil {
		return FanoutReport{}, err
	}
	actorEmail := sess.SafeEmail()
	others, err := checkParticipants(actorEmail, otherEmails, otherNames)
	if err != nil {
		return FanoutReport{}, err
	}
	m, err = s.prepareMessage(m)
	if err != nil {
		return FanoutReport{}, err
	}
	actor, err := loadUser(ctx, s.store, actorEmail)
	if err != nil {
		return FanoutReport{}, err
	}
	actorName := actor.Name()

	if s.guard != nil {
		claimed, err := s.guard.Claim(ctx, conversationID, m.ID)
		if err != nil {
			return FanoutReport{}, fmt.Errorf("claim message id: %w", err)
		}
		if !claimed {
			return FanoutReport{}, fmt.Errorf("%w: message %s", domain.ErrAlreadyExists, m.ID)
		}
	}

	stored, err := docstore.Normalize(storedMessage(m, actorEmail, actorName))
	if err != nil {
		return FanoutReport{}, err
	}
	err = s.store.Update(ctx, messagesPath(conversationID), func(current any) (any, error) {
		list, ok := current.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrFetchFailed, conversationID)
		}
		return append(list, stored), nil
	})
	if err != nil {
		if s.guard != nil {
			s.guard.Release(ctx, conversationID, m.ID)
		}
		commonlog.Errorf("event=message_append action=messages status=failed conversation_id=%s error=%v", conversationID, err)
		return FanoutReport{}, err
	}

	date := domain.FormatDate(m.SentAt)
	sender := domain.ConversationEntry{
		ID:               conversationID,
		OtherUserEmails:  others,
		OtherUserNames:   otherNames,
		ConversationName: domain.FormatNames(otherNames),
		LatestMessage:    domain.LatestMessage{Date: date, Message: m.Summary(), IsRead: true},
	}
	if err := s.store.Update(ctx, indexPath(actorEmail), touchEntry(sender)); err != nil {
		commonlog.Errorf("event=message_append action=sender_index status=failed conversation_id=%s error=%v", conversationID, err)
		return FanoutReport{}, fmt.Errorf("update sender index: %w", err)
	}

	positions := make(map[string]int, len(others))
	for i, e := range others {
		positions[e] = i
	}
	latest := domain.LatestMessage{Date: date, Message: m.Summary(), IsRead: false}
	report := fanout(ctx, s.fanoutLimit, others, func(ctx context.Context, recipient string) error {
		entry := recipientEntry(conversationID, positions[recipient], actorEmail, actorName, others, otherNames, latest)
		return s.store.Update(ctx, indexPath(recipient), touchEntry(entry))
	})
	if !report.OK() {
		commonlog.Warnf("event=message_append action=recipient_index status=partial conversation_id=%s failures=%d", conversationID, len(report.Failures()))
	}
	publish(ctx, s.events, EventMessageAppended, map[string]any{
		"conversation_id": conversationID,
		"message_id":      m.ID,
		"sender_email":    actorEmail,
		"recipients":      others,
		"type":            m.Kind,
	})
	return report, nil
}

// MarkLatestRead flips is_read on the caller's entry with a single rewrite.
func (s *ConversationService) MarkLatestRead(ctx context.Context, sess *domain.Session, conversationID string) error {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return err
	}
	return s.store.Update(ctx, indexPath(sess.SafeEmail()), func(current any) (any, error) {
		list, ok := current.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: conversations for %s", domain.ErrFetchFailed, sess.SafeEmail())
		}
		i := findEntry(list, conversationID)
		if i < 0 {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrNotFound, conversationID)
		}
		entry := asMap(list[i])
		latest := asMap(entry["latest_message"])
		if latest == nil {
			latest = map[string]any{}
		}
		latest["is_read"] = true
		entry["latest_message"] = latest
		return list, nil
	})
}

// ConversationExists returns the id of the caller's conversation whose peers
// are exactly targetEmails, in any order.
func (s *ConversationService) ConversationExists(ctx context.Context, sess *domain.Session, targetEmails []string) (string, error) {
	if sess == nil || sess.Email() == "" {
		return "", fmt.Errorf("%w: no caller email", domain.ErrVerificationFailed)
	}
	raw, err := s.store.Get(ctx, indexPath(sess.SafeEmail()))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return "", domain.ErrNotFound
		}
		return "", fetchError("conversations", err)
	}
	entries, _, err := domain.DecodeConversationEntries(raw)
	if err != nil {
		return "", err
	}
	targets := safeEmails(targetEmails)
	for _, entry := range entries {
		if sameSet(targets, entry.OtherUserEmails) {
			return entry.ID, nil
		}
	}
	return "", domain.ErrNotFound
}

// DeleteConversation reads the participant list from the conversation body
// and stops there if it cannot. Each participant's entry is then removed in
// turn before the body itself is deleted.
func (s *ConversationService) DeleteConversation(ctx context.Context, sess *domain.Session, conversationID string) (FanoutReport, error) {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return FanoutReport{}, err
	}
	if err := checkConversationID(conversationID); err != nil {
		return FanoutReport{}, err
	}
	raw, err := s.store.Get(ctx, conversationPath(conversationID))
	if err != nil {
		return FanoutReport{}, fetchError("conversation "+conversationID, err)
	}
	var body domain.Conversation
	if err := docstore.Decode(raw, &body); err != nil || len(body.UserEmails) == 0 {
		return FanoutReport{}, fmt.Errorf("%w: conversation %s has no participants", domain.ErrFetchFailed, conversationID)
	}

	report := sequential(ctx, body.UserEmails, func(ctx context.Context, p string) error {
		return s.store.Update(ctx, indexPath(p), func(current any) (any, error) {
			list := asList(current)
			i := findEntry(list, conversationID)
			if i < 0 {
				return nil, errEntryMissing
			}
			return append(list[:i:i], list[i+1:]...), nil
		})
	})
	if err := s.store.Set(ctx, conversationPath(conversationID), nil); err != nil {
		report.record(conversationPath(conversationID), err)
	}
	if !report.OK() {
		commonlog.Warnf("event=conversation_delete status=partial conversation_id=%s failures=%d", conversationID, len(report.Failures()))
	} else {
		commonlog.Infof("event=conversation_delete status=ok conversation_id=%s", conversationID)
	}
	publish(ctx, s.events, EventConversationDeleted, map[string]any{
		"conversation_id": conversationID,
		"user_emails":     body.UserEmails,
	})
	return report, nil
}
