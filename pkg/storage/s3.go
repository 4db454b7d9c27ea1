package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrymomot/mailing"
	"github.com/dmitrymomot/mailing/pkg/logger"
)

// S3Storage fetches attachments from and archives sent messages to an
// S3-compatible bucket.
type S3Storage struct {
	client    objectAPI
	presigner *s3.PresignClient
	cfg       Config
	now       func() time.Time
}

// New creates a store with static credentials.
func New(cfg Config) (*S3Storage, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		},
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	client := s3.New(s3.Options{}, opts...)
	return &S3Storage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Attach downloads the object at key into memory and returns it as an
// attachment source. The display name is the last key segment unless name is
// given; the object's Content-Type becomes the part's MIME type.
func (s *S3Storage) Attach(ctx context.Context, key, name string) (mailing.AttachmentSource, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mailing.AttachmentSource{}, attachError(key, wrapS3Error(err, ErrNotFound))
	}
	defer out.Body.Close()

	limit := s.cfg.MaxAttachmentSize
	if out.ContentLength != nil && *out.ContentLength > limit {
		return mailing.AttachmentSource{}, attachError(key, ErrAttachmentTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return mailing.AttachmentSource{}, attachError(key, err)
	}
	if int64(len(data)) > limit {
		return mailing.AttachmentSource{}, attachError(key, ErrAttachmentTooLarge)
	}

	if name == "" {
		name = path.Base(key)
	}
	contentType := aws.ToString(out.ContentType)

	src := mailing.AttachmentSource{File: &mailing.File{
		Name:        name,
		Reader:      bytes.NewReader(data),
		ContentType: contentType,
	}}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if typ, sub, ok := strings.Cut(mt, "/"); ok {
			src.Meta = &mailing.AttachmentMeta{MimeType: typ, MimeSubtype: sub}
		}
	}
	return src, nil
}

func attachError(key string, err error) error {
	return errors.Join(mailing.ErrValidation, fmt.Errorf("%w: s3://%s", mailing.ErrWrongFile, key), err)
}

// Exists reports whether an object is stored at key.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if err = wrapS3Error(err, ErrNotFound); errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// URL returns a presigned download link for key, e.g. for large files that
// are linked from the body instead of attached. Non-positive expiry means
// DefaultURLExpiry.
func (s *S3Storage) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPresignFailed, err)
	}
	return req.URL, nil
}

// Archive stores the serialized message as message/rfc822 and returns its key:
// "<prefix>/YYYY/MM/DD/<message-id>.eml".
func (s *S3Storage) Archive(ctx context.Context, msg *mailing.MIMEMessage) (string, error) {
	data, err := msg.Bytes()
	if err != nil {
		return "", err
	}

	key := s.archiveKey(msg.MessageID())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("message/rfc822"),
	})
	if err != nil {
		return "", wrapS3Error(err, ErrUploadFailed)
	}
	return key, nil
}

// Archiver returns an observer for mailing.Mail.Subscribe that archives every
// dispatched message. Failures are logged, never returned to the sender.
func (s *S3Storage) Archiver(log *slog.Logger) mailing.DispatchFunc {
	if log == nil {
		log = logger.NewNope()
	}
	return func(ctx context.Context, msg *mailing.MIMEMessage) {
		key, err := s.Archive(ctx, msg)
		if err != nil {
			log.ErrorContext(ctx, "failed to archive email", logger.Error(err))
			return
		}
		log.DebugContext(ctx, "email archived", slog.String("key", key))
	}
}

func (s *S3Storage) archiveKey(messageID string) string {
	id := sanitizeKeySegment(strings.Trim(messageID, "<> "))
	if id == "" {
		id = fmt.Sprintf("%d", s.now().UnixNano())
	}
	return path.Join(s.cfg.ArchivePrefix, s.now().UTC().Format("2006/01/02"), id+".eml")
}

// sanitizeKeySegment keeps [A-Za-z0-9._@-] and replaces everything else with "_".
func sanitizeKeySegment(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '@', r == '-':
			return r
		}
		return '_'
	}, v)
}
