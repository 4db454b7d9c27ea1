// Package mailing sends email over SMTP.
//
// A message is described with [NewMessage], turned into a MIME tree by a
// [Builder] and delivered over a [Transport]. The [Mail] facade ties the
// pieces together and notifies observers of every message it sends.
//
// # Quick Start
//
// Load settings from the environment (MAIL_* variables) and send:
//
//	settings, err := mailing.LoadSettings()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	m, err := mailing.New(settings, mailing.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = m.SendMail(ctx, "Welcome", "Thanks for signing up.", []string{"user@example.com"})
//
// # Messages
//
// [NewMessage] validates every address, resolves attachments and applies
// defaults. Only validated messages are accepted by the facade:
//
//	msg, err := mailing.NewMessage(mailing.MessageParams{
//	    Subject:      "Invoice",
//	    Recipients:   []string{"billing@example.com"},
//	    Body:         "Your invoice is attached.",
//	    TemplateBody: map[string]any{"amount": "42.00"},
//	    Attachments:  []mailing.AttachmentSource{mailing.AttachPath("invoices/42.pdf")},
//	})
//	err = m.SendMessage(ctx, msg, mailing.WithTemplate("invoice.html"))
//
// The plain Body is always the first part. The rendered template follows
// as text/html; raw HTML is only used when there is neither a body nor a
// template.
//
// # Templates
//
// With MAIL_TEMPLATE_FOLDER set, templates are html/template files loaded
// from that folder by [FolderEngine]. Any [TemplateEngine] can be plugged in
// with [WithTemplateEngine]; pkg/markdown renders markdown templates with
// layouts.
//
// # Transports
//
// The default transport opens one SMTP session per send. [Connect] and
// [WithConnection] give direct access to a session for sending several
// messages over one connection. pkg/resend delivers through the Resend API,
// and pkg/security wraps any transport with a rate limit.
//
// # Testing
//
// Set SUPPRESS_SEND to skip delivery while still notifying observers, and
// capture messages with [Mail.RecordMessages]:
//
//	err := m.RecordMessages(func(outbox *mailing.Outbox) error {
//	    if err := m.SendMail(ctx, "Hi", "body", []string{"a@example.com"}); err != nil {
//	        return err
//	    }
//	    if outbox.Len() != 1 {
//	        return errors.New("expected one message")
//	    }
//	    return nil
//	})
//
// # Errors
//
// Every error matches one of [ErrValidation], [ErrConfiguration] or
// [ErrConnection] with errors.Is, plus a specific sentinel such as
// [ErrInvalidAddress] or [ErrAuthentication].
package mailing
