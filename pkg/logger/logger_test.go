package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailing/pkg/logger"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestMailExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelInfo, logger.MailExtractor())

	ctx := logger.WithMail(context.Background(), logger.MailContext{MessageID: "<id@host>", Subject: "Welcome"})
	ctx = logger.WithMail(ctx, logger.MailContext{Template: "welcome.html"})
	log.InfoContext(ctx, "smtp message sent")

	rec := decode(t, &buf)
	mail, ok := rec["mail"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "<id@host>", mail["message_id"])
	require.Equal(t, "Welcome", mail["subject"])
	require.Equal(t, "welcome.html", mail["template"])
}

func TestMailExtractor_NoContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelInfo, logger.MailExtractor(), nil)
	log.InfoContext(context.Background(), "idle")

	rec := decode(t, &buf)
	require.NotContains(t, rec, "mail")
}

func TestNewWithWriter_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelInfo)
	log.Debug("smtp rcpt to")
	require.Zero(t, buf.Len())

	log = logger.NewWithWriter(&buf, slog.LevelDebug)
	log.Debug("smtp rcpt to")
	require.NotZero(t, buf.Len())
}

func TestErrorAttr(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, slog.LevelInfo)
	log.Error("send failed", logger.Error(errors.New("550 mailbox unavailable")), logger.Recipients([]string{"a@example.com", "b@example.com"}))

	rec := decode(t, &buf)
	require.Equal(t, "550 mailbox unavailable", rec["error"])
	require.InDelta(t, 2, rec["recipients"], 0)
}

func TestNewWithSentry_NoDSN(t *testing.T) {
	t.Parallel()

	log := logger.NewWithSentry(logger.SentryConfig{})
	require.NotNil(t, log)
	require.True(t, log.Enabled(context.Background(), slog.LevelInfo))
}
