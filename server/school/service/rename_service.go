package service

import (
	"context"
	"errors"
	"strings"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

type RenameService struct {
	store       docstore.Store
	sessions    *SessionService
	directory   *DirectoryService
	events      EventPublisher
	fanoutLimit int
}

func NewRenameService(store docstore.Store, sessions *SessionService, directory *DirectoryService, events EventPublisher, fanoutLimit int) *RenameService {
	if events == nil {
		events = NopPublisher{}
	}
	return &RenameService{store: store, sessions: sessions, directory: directory, events: events, fanoutLimit: fanoutLimit}
}

// ChangeDisplayName sets the caller's display name and rewrites every copy
// of it: peers' conversation entries, the profile, the directory, and sent
// announcements. A nil newName clears the display name, so copies fall back
// to the legal name. Steps do not roll back; each one is reported.
func (s *RenameService) ChangeDisplayName(ctx context.Context, sess *domain.Session, newName *string) (FanoutReport, error) {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return FanoutReport{}, err
	}
	safe := sess.SafeEmail()
	actor, err := loadUser(ctx, s.store, safe)
	if err != nil {
		return FanoutReport{}, err
	}
	if newName != nil {
		trimmed := strings.TrimSpace(*newName)
		if trimmed == "" {
			newName = nil
		} else {
			newName = &trimmed
		}
	}
	replacement := actor.LegalName()
	if newName != nil {
		replacement = *newName
	}

	var report FanoutReport

	peers, err := s.conversationPeers(ctx, safe)
	if err != nil {
		report.record(indexPath(safe), err)
	}
	report.merge(fanout(ctx, s.fanoutLimit, peers, func(ctx context.Context, peer string) error {
		return s.store.Update(ctx, indexPath(peer), renameInEntries(safe, replacement))
	}))

	var display any
	if newName != nil {
		display = *newName
	}
	report.record(displayNamePath(safe), s.store.Set(ctx, displayNamePath(safe), display))

	entry := domain.DirectoryEntry{FirstName: actor.FirstName, LastName: actor.LastName, Email: safe}
	if newName != nil {
		entry.DisplayName = *newName
	}
	report.record(directoryPath, s.directory.ReplaceEntry(ctx, entry))

	report.record(gradesPath, s.store.Update(ctx, gradesPath, renameInAnnouncements(safe, replacement)))

	if report.OK() {
		commonlog.Infof("event=display_name_change status=ok email=%s peers=%d", safe, len(peers))
	} else {
		commonlog.Warnf("event=display_name_change status=partial email=%s failures=%d", safe, len(report.Failures()))
	}
	publish(ctx, s.events, EventUserRenamed, map[string]any{
		"email":        safe,
		"display_name": replacement,
	})
	return report, nil
}

func (s *RenameService) conversationPeers(ctx context.Context, safe string) ([]string, error) {
	raw, err := s.store.Get(ctx, indexPath(safe))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entries, _, err := domain.DecodeConversationEntries(raw)
	if err != nil {
		return nil, err
	}
	var peers []string
	for _, entry := range entries {
		peers = append(peers, entry.OtherUserEmails...)
	}
	return dedupeAndTrim(peers), nil
}

// renameInEntries moves the renamed participant's (email, name) pair to the
// end with the new name, keeping the email and name lists parallel.
func renameInEntries(email, newName string) docstore.UpdateFunc {
	return func(current any) (any, error) {
		list := asList(current)
		for _, item := range list {
			entry := asMap(item)
			if entry == nil {
				continue
			}
			emails := asStrings(entry["other_user_emails"])
			names := asStrings(entry["other_user_names"])
			if len(emails) != len(names) {
				continue
			}
			pos := -1
			for i, e := range emails {
				if e == email {
					pos = i
					break
				}
			}
			if pos < 0 {
				continue
			}
			emails = append(append(emails[:pos:pos], emails[pos+1:]...), email)
			names = append(append(names[:pos:pos], names[pos+1:]...), newName)
			entry["other_user_emails"] = emails
			entry["other_user_names"] = names
			entry["conversation_name"] = domain.FormatNames(names)
		}
		return list, nil
	}
}

func renameInAnnouncements(email, newName string) docstore.UpdateFunc {
	return func(current any) (any, error) {
		buckets := asList(current)
		for _, item := range buckets {
			bucket := asMap(item)
			if bucket == nil {
				continue
			}
			for _, a := range asList(bucket["announcements"]) {
				announcement := asMap(a)
				if sender, _ := announcement["sender_email"].(string); sender == email {
					announcement["sender_name"] = newName
				}
			}
			latest := asMap(bucket["latest_announcement"])
			if sender, _ := latest["sender_email"].(string); sender == email {
				latest["sender_name"] = newName
			}
		}
		return current, nil
	}
}
