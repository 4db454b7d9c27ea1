// Package logger builds log/slog loggers for the mailing packages.
//
// Loggers write JSON and can carry context extractors: functions that pull an
// attribute out of the context of each log call. MailExtractor adds the message
// being sent, so every SMTP step logged during a send is tagged with it:
//
//	log := logger.New(logger.MailExtractor())
//	ctx := logger.WithMail(ctx, logger.MailContext{MessageID: id, Subject: "Welcome"})
//	log.InfoContext(ctx, "smtp message sent")
//	// {"level":"INFO","msg":"smtp message sent","mail":{"message_id":"...","subject":"Welcome"}}
//
// NewWithSentry additionally forwards warnings and errors to Sentry and falls
// back to stdout only when SENTRY_DSN is empty.
//
// NewNope discards everything and is the default wherever a logger is optional.
package logger
