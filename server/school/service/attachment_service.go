package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	commonlog "schoolboard/server/common/log"
	"schoolboard/server/school/domain"
)

const (
	maxImageAttachmentBytes = 20 << 20
	defaultPresignTTL       = 15 * time.Minute
	thumbnailSize           = 320

	// AttachmentRoute is where stable attachment links point; each GET is
	// redirected to a freshly presigned object URL.
	AttachmentRoute = "/api/v1/attachments/"
)

type Attachment struct {
	ObjectKey    string `json:"object_key"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// AttachmentService stores message and announcement media. The returned
// URLs are what photo and video messages carry as content, so they never
// expire: they name the object under baseURL and are resolved by Link.
type AttachmentService struct {
	client     *minio.Client
	bucket     string
	baseURL    string
	sessions   *SessionService
	presignTTL time.Duration
}

func NewAttachmentService(client *minio.Client, bucket, baseURL string, sessions *SessionService) *AttachmentService {
	return &AttachmentService{
		client:     client,
		bucket:     bucket,
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessions:   sessions,
		presignTTL: defaultPresignTTL,
	}
}

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

func attachmentKey(safeEmail, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	if !extensionPattern.MatchString(ext) {
		ext = ""
	}
	return fmt.Sprintf("attachments/%s/%s%s", safeEmail, uuid.NewString(), ext)
}

func thumbnailKey(objectKey string) string {
	return "thumbnails/" + strings.TrimSuffix(strings.TrimPrefix(objectKey, "attachments/"), path.Ext(objectKey)) + ".jpg"
}

func (s *AttachmentService) stableURL(key string) string {
	return s.baseURL + AttachmentRoute + key
}

// validObjectKey accepts only keys Upload could have produced.
func validObjectKey(key string) bool {
	if !strings.HasPrefix(key, "attachments/") && !strings.HasPrefix(key, "thumbnails/") {
		return false
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return false
		}
	}
	return true
}

// Link presigns a short-lived GET for key.
func (s *AttachmentService) Link(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if !validObjectKey(key) {
		return "", fmt.Errorf("%w: attachment %s", domain.ErrNotFound, key)
	}
	return s.presign(ctx, key)
}

func isImage(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff":
		return true
	}
	return false
}

func (s *AttachmentService) Upload(ctx context.Context, sess *domain.Session, filename, contentType string, size int64, body io.Reader) (Attachment, error) {
	if err := s.sessions.requireSession(ctx, sess); err != nil {
		return Attachment{}, err
	}
	if size <= 0 {
		return Attachment{}, fmt.Errorf("%w: empty attachment", domain.ErrInvalidInput)
	}
	key := attachmentKey(sess.SafeEmail(), filename)

	var original []byte
	if isImage(contentType) {
		if size > maxImageAttachmentBytes {
			return Attachment{}, fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidInput, maxImageAttachmentBytes)
		}
		b, err := io.ReadAll(io.LimitReader(body, size))
		if err != nil {
			return Attachment{}, fmt.Errorf("read attachment: %w", err)
		}
		original = b
		body = bytes.NewReader(b)
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}
	result := Attachment{ObjectKey: key, URL: s.stableURL(key)}
	if original != nil {
		thumbKey, err := s.makeThumbnail(ctx, key, original)
		if err != nil {
			commonlog.Warnf("event=attachment_thumbnail status=failed object_key=%s error=%v", key, err)
		} else {
			result.ThumbnailURL = s.stableURL(thumbKey)
		}
	}
	commonlog.Infof("event=attachment_upload status=ok object_key=%s size=%d", key, size)
	return result, nil
}

func (s *AttachmentService) presign(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *AttachmentService) makeThumbnail(ctx context.Context, objectKey string, original []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return "", err
	}
	thumb := imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}
	key := thumbnailKey(objectKey)
	reader := bytes.NewReader(buf.Bytes())
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(reader.Len()), minio.PutObjectOptions{ContentType: "image/jpeg"}); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return key, nil
}
