package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailing"
)

type object struct {
	data        []byte
	contentType string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]object)}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentLength: aws.Int64(int64(len(obj.data))),
		ContentType:   aws.String(obj.contentType),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = object{data: data, contentType: aws.ToString(in.ContentType)}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) get(key string) (object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	return obj, ok
}

func testConfig() Config {
	return Config{
		Bucket:    "mail",
		AccessKey: "access",
		SecretKey: "secret",
	}
}

func newTestStorage(t *testing.T, cfg Config) (*S3Storage, *fakeS3) {
	t.Helper()

	s, err := New(cfg)
	require.NoError(t, err)

	fake := newFakeS3()
	s.client = fake
	s.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }
	return s, fake
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		s, err := New(testConfig())
		require.NoError(t, err)
		assert.Equal(t, DefaultRegion, s.cfg.Region)
		assert.Equal(t, DefaultArchivePrefix, s.cfg.ArchivePrefix)
		assert.Equal(t, int64(DefaultMaxAttachmentSize), s.cfg.MaxAttachmentSize)
	})

	t.Run("custom endpoint", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.Endpoint = "http://localhost:9000"
		cfg.PathStyle = true
		s, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, s.presigner)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		s, err := New(Config{Bucket: "mail"})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, s)
	})
}

func TestAttach(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s, fake := newTestStorage(t, testConfig())
	fake.objects["invoices/42.pdf"] = object{data: []byte("%PDF-1.7"), contentType: "application/pdf"}
	fake.objects["notes"] = object{data: []byte("hello"), contentType: ""}

	t.Run("builds attachment part", func(t *testing.T) {
		t.Parallel()

		src, err := s.Attach(ctx, "invoices/42.pdf", "")
		require.NoError(t, err)
		require.NotNil(t, src.Meta)
		assert.Equal(t, "42.pdf", src.File.Name)

		msg, err := mailing.NewMessage(mailing.MessageParams{
			Subject:     "Invoice",
			Recipients:  []string{"to@example.com"},
			Body:        "attached",
			Attachments: []mailing.AttachmentSource{src},
		})
		require.NoError(t, err)

		built, err := mailing.NewBuilder(nil).Build(msg, "from@example.com")
		require.NoError(t, err)

		parts := built.AttachmentParts()
		require.Len(t, parts, 1)
		assert.Equal(t, "application/pdf", parts[0].ContentType())
		assert.Equal(t, "42.pdf", parts[0].Filename())
		assert.Equal(t, []byte("%PDF-1.7"), parts[0].Body)
	})

	t.Run("custom name and unknown type", func(t *testing.T) {
		t.Parallel()

		src, err := s.Attach(ctx, "notes", "notes.txt")
		require.NoError(t, err)
		assert.Equal(t, "notes.txt", src.File.Name)
		assert.Nil(t, src.Meta)
	})

	t.Run("missing object", func(t *testing.T) {
		t.Parallel()

		_, err := s.Attach(ctx, "nope.pdf", "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, err, mailing.ErrWrongFile)
		assert.ErrorIs(t, err, mailing.ErrValidation)
	})
}

func TestAttach_TooLarge(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxAttachmentSize = 4
	s, fake := newTestStorage(t, cfg)
	fake.objects["big.bin"] = object{data: []byte("12345"), contentType: "application/octet-stream"}

	_, err := s.Attach(context.Background(), "big.bin", "")
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
}

func TestExists(t *testing.T) {
	t.Parallel()

	s, fake := newTestStorage(t, testConfig())
	fake.objects["a.txt"] = object{data: []byte("a")}

	ok, err := s.Exists(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(context.Background(), "b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Endpoint = "http://localhost:9000"
	cfg.PathStyle = true
	s, err := New(cfg)
	require.NoError(t, err)

	u, err := s.URL(context.Background(), "invoices/42.pdf", time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/mail/invoices/42.pdf?"), u)
	assert.Contains(t, u, "X-Amz-Expires=3600")
}

func buildMessage(t *testing.T) *mailing.MIMEMessage {
	t.Helper()

	msg, err := mailing.NewMessage(mailing.MessageParams{
		Subject:    "Archived",
		Recipients: []string{"to@example.com"},
		Body:       "hello",
	})
	require.NoError(t, err)

	built, err := mailing.NewBuilder(nil).Build(msg, "from@example.com")
	require.NoError(t, err)
	return built
}

func TestArchive(t *testing.T) {
	t.Parallel()

	s, fake := newTestStorage(t, testConfig())
	built := buildMessage(t)

	key, err := s.Archive(context.Background(), built)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "sent/2026/03/09/"), key)
	assert.True(t, strings.HasSuffix(key, ".eml"), key)
	assert.NotContains(t, key, "<")

	obj, ok := fake.get(key)
	require.True(t, ok)
	assert.Equal(t, "message/rfc822", obj.contentType)
	assert.Contains(t, string(obj.data), "Subject: Archived")
}

func TestArchiver(t *testing.T) {
	t.Parallel()

	t.Run("stores dispatched message", func(t *testing.T) {
		t.Parallel()

		s, fake := newTestStorage(t, testConfig())
		built := buildMessage(t)

		s.Archiver(nil)(context.Background(), built)
		_, ok := fake.get(s.archiveKey(built.MessageID()))
		assert.True(t, ok)
	})

	t.Run("upload failure is swallowed", func(t *testing.T) {
		t.Parallel()

		s, fake := newTestStorage(t, testConfig())
		fake.putErr = errors.New("boom")

		assert.NotPanics(t, func() {
			s.Archiver(nil)(context.Background(), buildMessage(t))
		})
		_, err := s.Archive(context.Background(), buildMessage(t))
		assert.ErrorIs(t, err, ErrUploadFailed)
	})
}

func TestSanitizeKeySegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"abc-123@host.example", "abc-123@host.example"},
		{"a/b c", "a_b_c"},
		{"ünï", "_n_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeKeySegment(tt.input))
	}
}
