package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
)

var errBucketMissing = errors.New("grade bucket missing")

type AnnouncementService struct {
	store    docstore.Store
	sessions *SessionService
	events   EventPublisher
	now      func() time.Time
}

func NewAnnouncementService(store docstore.Store, sessions *SessionService, events EventPublisher) *AnnouncementService {
	if events == nil {
		events = NopPublisher{}
	}
	return &AnnouncementService{store: store, sessions: sessions, events: events, now: time.Now}
}

func findBucket(buckets []any, grade int) int {
	for i, item := range buckets {
		if g, ok := asInt(asMap(item)["grade"]); ok && g == grade {
			return i
		}
	}
	return -1
}

// CreateGrade seeds a bucket for grade with a welcome announcement and keeps
// the bucket list sorted by grade.
func (s *AnnouncementService) CreateGrade(ctx context.Context, sess *domain.Session, grade int) error {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return err
	}
	if !domain.ValidGrade(grade) {
		return fmt.Errorf("%w: grade %d outside %d..%d", domain.ErrInvalidInput, grade, domain.MinGrade, domain.MaxGrade)
	}
	actor, err := loadUser(ctx, s.store, sess.SafeEmail())
	if err != nil {
		return err
	}
	now := s.now()
	welcome := domain.Announcement{
		Title:          "Welcome!",
		Body:           fmt.Sprintf("This is the %s announcements page.", domain.FormatGrade(grade)),
		Grade:          grade,
		SentDate:       domain.FormatDate(now.Add(-10 * time.Second)),
		SenderEmail:    sess.SafeEmail(),
		SenderName:     actor.Name(),
		AnnouncementID: domain.AnnouncementID(grade, sess.SafeEmail(), domain.FormatDate(now.Add(-time.Second))),
	}
	bucket, err := docstore.Normalize(domain.AnnouncementGrade{
		Grade:              grade,
		Announcements:      []domain.Announcement{welcome},
		LatestAnnouncement: welcome.Latest(),
	})
	if err != nil {
		return err
	}

	err = s.store.Update(ctx, gradesPath, func(current any) (any, error) {
		buckets := asList(current)
		if findBucket(buckets, grade) >= 0 {
			return nil, fmt.Errorf("%w: grade %d already exists", domain.ErrInvalidInput, grade)
		}
		pos := 0
		for _, item := range buckets {
			if g, ok := asInt(asMap(item)["grade"]); ok && g < grade {
				pos++
			}
		}
		out := make([]any, 0, len(buckets)+1)
		out = append(out, buckets[:pos]...)
		out = append(out, bucket)
		return append(out, buckets[pos:]...), nil
	})
	if err != nil {
		commonlog.Errorf("event=grade_create status=failed grade=%d error=%v", grade, err)
		return err
	}
	commonlog.Infof("event=grade_create status=ok grade=%d", grade)
	return nil
}

// CreateAnnouncement appends a to its grade bucket and makes it the latest.
// A missing bucket is not an error; the announcement is dropped.
func (s *AnnouncementService) CreateAnnouncement(ctx context.Context, sess *domain.Session, a domain.Announcement) error {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return err
	}
	if err := validateAnnouncement(a); err != nil {
		return err
	}
	stored, err := docstore.Normalize(a)
	if err != nil {
		return err
	}
	latest, err := docstore.Normalize(a.Latest())
	if err != nil {
		return err
	}
	err = s.store.Update(ctx, gradesPath, func(current any) (any, error) {
		buckets := asList(current)
		i := findBucket(buckets, a.Grade)
		if i < 0 {
			return nil, errBucketMissing
		}
		bucket := asMap(buckets[i])
		bucket["announcements"] = append(asList(bucket["announcements"]), stored)
		bucket["latest_announcement"] = latest
		return buckets, nil
	})
	if errors.Is(err, errBucketMissing) {
		commonlog.Warnf("event=announcement_create status=skipped grade=%d reason=bucket_missing", a.Grade)
		return nil
	}
	if err != nil {
		commonlog.Errorf("event=announcement_create status=failed grade=%d error=%v", a.Grade, err)
		return err
	}
	commonlog.Infof("event=announcement_create status=ok grade=%d announcement_id=%s", a.Grade, a.AnnouncementID)
	publish(ctx, s.events, EventAnnouncementCreated, map[string]any{
		"announcement_id": a.AnnouncementID,
		"grade":           a.Grade,
		"title":           a.Title,
		"sender_email":    a.SenderEmail,
	})
	return nil
}

func validateAnnouncement(a domain.Announcement) error {
	switch {
	case a.Title == "" || a.Body == "":
		return fmt.Errorf("%w: title and body are required", domain.ErrInvalidInput)
	case len([]rune(a.Title)) > domain.MaxAnnouncementTitle:
		return fmt.Errorf("%w: title longer than %d", domain.ErrInvalidInput, domain.MaxAnnouncementTitle)
	case len([]rune(a.Body)) > domain.MaxAnnouncementBody:
		return fmt.Errorf("%w: body longer than %d", domain.ErrInvalidInput, domain.MaxAnnouncementBody)
	case !domain.ValidGrade(a.Grade):
		return fmt.Errorf("%w: grade %d", domain.ErrInvalidInput, a.Grade)
	case a.AnnouncementID == "":
		return fmt.Errorf("%w: announcement id is required", domain.ErrInvalidInput)
	}
	return nil
}

// PublishAnnouncement turns a draft into one announcement per target grade
// sharing a sent date, and creates each of them.
func (s *AnnouncementService) PublishAnnouncement(ctx context.Context, sess *domain.Session, draft domain.AnnouncementDraft) ([]domain.Announcement, error) {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return nil, err
	}
	if err := domain.Validate(draft); err != nil {
		return nil, err
	}
	actor, err := loadUser(ctx, s.store, sess.SafeEmail())
	if err != nil {
		return nil, err
	}
	sentDate := domain.FormatDate(s.now())
	seen := map[int]struct{}{}
	var created []domain.Announcement
	var errs []error
	for _, grade := range draft.Grades {
		if _, dup := seen[grade]; dup {
			continue
		}
		seen[grade] = struct{}{}
		a := domain.Announcement{
			Title:          draft.Title,
			Body:           draft.Body,
			Attachments:    draft.Attachments,
			Grade:          grade,
			SentDate:       sentDate,
			SenderEmail:    sess.SafeEmail(),
			SenderName:     actor.Name(),
			AnnouncementID: domain.AnnouncementID(grade, sess.SafeEmail(), sentDate),
		}
		if err := s.CreateAnnouncement(ctx, sess, a); err != nil {
			errs = append(errs, fmt.Errorf("grade %d: %w", grade, err))
			continue
		}
		created = append(created, a)
	}
	return created, errors.Join(errs...)
}

func (s *AnnouncementService) ListGrades(ctx context.Context, sess *domain.Session) (Snapshot[domain.GradeSummary], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return Snapshot[domain.GradeSummary]{}, err
	}
	return readSnapshot(ctx, s.store, gradesPath, domain.DecodeGradeSummaries)
}

func (s *AnnouncementService) WatchGrades(ctx context.Context, sess *domain.Session) (<-chan Snapshot[domain.GradeSummary], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return nil, err
	}
	return watch(ctx, s.store, gradesPath, domain.DecodeGradeSummaries)
}

func announcementsOf(grade int) decodeFunc[domain.Announcement] {
	return func(raw any) ([]domain.Announcement, []domain.DecodeFailure, error) {
		buckets, ok := raw.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("%w: announcement grades", domain.ErrFetchFailed)
		}
		i := findBucket(buckets, grade)
		if i < 0 {
			return nil, nil, fmt.Errorf("%w: grade %d", domain.ErrFetchFailed, grade)
		}
		return domain.DecodeAnnouncements(asMap(buckets[i])["announcements"])
	}
}

func (s *AnnouncementService) ListAnnouncements(ctx context.Context, sess *domain.Session, grade int) (Snapshot[domain.Announcement], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return Snapshot[domain.Announcement]{}, err
	}
	return readSnapshot(ctx, s.store, gradesPath, announcementsOf(grade))
}

func (s *AnnouncementService) WatchAnnouncements(ctx context.Context, sess *domain.Session, grade int) (<-chan Snapshot[domain.Announcement], error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return nil, err
	}
	return watch(ctx, s.store, gradesPath, announcementsOf(grade))
}

// SetPinned changes the pinned flag of one announcement in one grade.
func (s *AnnouncementService) SetPinned(ctx context.Context, sess *domain.Session, announcementID string, grade int, pinned bool) error {
	if err := s.sessions.requireDean(ctx, sess); err != nil {
		return err
	}
	err := s.store.Update(ctx, gradesPath, func(current any) (any, error) {
		buckets, ok := current.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: announcement grades", domain.ErrFetchFailed)
		}
		i := findBucket(buckets, grade)
		if i < 0 {
			return nil, fmt.Errorf("%w: grade %d", domain.ErrNotFound, grade)
		}
		for _, item := range asList(asMap(buckets[i])["announcements"]) {
			a := asMap(item)
			if id, _ := a["announcement_id"].(string); id == announcementID {
				a["pinned"] = pinned
				return buckets, nil
			}
		}
		return nil, fmt.Errorf("%w: announcement %s", domain.ErrNotFound, announcementID)
	})
	if err != nil {
		return err
	}
	commonlog.Infof("event=announcement_pin status=ok grade=%d announcement_id=%s pinned=%t", grade, announcementID, pinned)
	publish(ctx, s.events, EventAnnouncementPinned, map[string]any{
		"announcement_id": announcementID,
		"grade":           grade,
		"pinned":          pinned,
	})
	return nil
}
