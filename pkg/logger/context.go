package logger

import (
	"context"
	"log/slog"
)

// MailContext describes the message a piece of work belongs to.
type MailContext struct {
	MessageID string
	Subject   string
	Template  string
}

type mailContextKey struct{}

// WithMail returns a copy of ctx carrying mc.
// Fields left empty keep the values of an enclosing MailContext.
func WithMail(ctx context.Context, mc MailContext) context.Context {
	if prev, ok := MailFromContext(ctx); ok {
		if mc.MessageID == "" {
			mc.MessageID = prev.MessageID
		}
		if mc.Subject == "" {
			mc.Subject = prev.Subject
		}
		if mc.Template == "" {
			mc.Template = prev.Template
		}
	}
	return context.WithValue(ctx, mailContextKey{}, mc)
}

// MailFromContext returns the MailContext stored in ctx, if any.
func MailFromContext(ctx context.Context) (MailContext, bool) {
	if ctx == nil {
		return MailContext{}, false
	}
	mc, ok := ctx.Value(mailContextKey{}).(MailContext)
	return mc, ok
}

// MailExtractor adds a "mail" group with the message id, subject and template of the current send.
func MailExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		mc, ok := MailFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}

		attrs := make([]any, 0, 3)
		if mc.MessageID != "" {
			attrs = append(attrs, slog.String("message_id", mc.MessageID))
		}
		if mc.Subject != "" {
			attrs = append(attrs, slog.String("subject", mc.Subject))
		}
		if mc.Template != "" {
			attrs = append(attrs, slog.String("template", mc.Template))
		}
		if len(attrs) == 0 {
			return slog.Attr{}, false
		}
		return slog.Group("mail", attrs...), true
	}
}
