package mailing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/mailing/pkg/logger"
)

// Mail sends messages over the configured transport and notifies observers
// of every message it hands off. Safe for concurrent use.
type Mail struct {
	settings   *Settings
	transport  Transport
	engine     TemplateEngine
	builder    *Builder
	logger     *slog.Logger
	htmlPolicy *bluemonday.Policy
	tokens     oauth2.TokenSource
	dispatcher dispatcher
}

// Option configures Mail.
type Option func(*Mail)

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mail) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTemplateEngine sets the engine named templates are rendered with.
// It takes precedence over MAIL_TEMPLATE_FOLDER.
func WithTemplateEngine(e TemplateEngine) Option {
	return func(m *Mail) {
		m.engine = e
	}
}

// WithTransport replaces the SMTP transport, e.g. with pkg/resend.
func WithTransport(t Transport) Option {
	return func(m *Mail) {
		m.transport = t
	}
}

// WithHTMLPolicy sanitizes raw HTML bodies with p before building.
// Rendered templates are not sanitized.
func WithHTMLPolicy(p *bluemonday.Policy) Option {
	return func(m *Mail) {
		m.htmlPolicy = p
	}
}

// WithTokenSource authenticates the SMTP transport with OAUTHBEARER.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(m *Mail) {
		m.tokens = ts
	}
}

// New validates settings and creates the facade.
func New(settings *Settings, opts ...Option) (*Mail, error) {
	if settings == nil {
		return nil, errors.Join(ErrConfiguration, errors.New("settings are required"))
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	m := &Mail{
		settings: settings,
		logger:   logger.NewNope(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.builder = NewBuilder(m.logger)
	if m.transport == nil {
		m.transport = &SMTPTransport{Settings: settings, Logger: m.logger, Tokens: m.tokens}
	}
	if m.engine == nil && settings.TemplateFolder != "" {
		engine, err := NewFolderEngine(settings.TemplateFolder, nil)
		if err != nil {
			return nil, err
		}
		m.engine = engine
	}

	return m, nil
}

// Settings returns the validated settings.
func (m *Mail) Settings() *Settings {
	return m.settings
}

// SendOption configures a single SendMessage call.
type SendOption func(*sendOptions)

type sendOptions struct {
	template string
}

// WithTemplate renders msg.TemplateBody with the named template before building.
func WithTemplate(name string) SendOption {
	return func(o *sendOptions) {
		o.template = name
	}
}

// SendMessage builds msg, delivers it over a fresh session and notifies observers.
// With WithTemplate the rendered HTML replaces msg.TemplateBody.
func (m *Mail) SendMessage(ctx context.Context, msg *Message, opts ...SendOption) error {
	if !msg.Validated() {
		return errors.Join(ErrValidation, ErrMessageRequired)
	}

	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx = logger.WithMail(ctx, logger.MailContext{Subject: msg.Subject, Template: o.template})

	if len(msg.Recipients)+len(msg.CC)+len(msg.BCC) == 0 {
		return errors.Join(ErrValidation, ErrNoRecipient)
	}

	if o.template != "" {
		if err := m.render(ctx, msg, o.template); err != nil {
			return err
		}
	}

	if m.htmlPolicy != nil && msg.HTML != "" {
		msg.HTML = m.htmlPolicy.Sanitize(msg.HTML)
	}

	built, err := m.builder.Build(msg, m.settings.Sender())
	if err != nil {
		return err
	}
	ctx = logger.WithMail(ctx, logger.MailContext{MessageID: built.MessageID()})

	if err := m.deliver(ctx, built); err != nil {
		m.logger.ErrorContext(ctx, "failed to send email", logger.Recipients(built.Recipients), logger.Error(err))
		return err
	}

	m.logger.InfoContext(ctx, "email dispatched", logger.Recipients(built.Recipients), slog.Bool("suppressed", m.settings.SuppressSend))
	m.dispatcher.dispatch(ctx, built)
	return nil
}

func (m *Mail) render(ctx context.Context, msg *Message, name string) error {
	if m.engine == nil {
		return errors.Join(ErrConfiguration, ErrTemplateEngine)
	}

	data, err := templateData(msg.TemplateBody)
	if err != nil {
		return err
	}

	html, err := m.engine.Render(ctx, name, data)
	if err != nil {
		return err
	}

	msg.TemplateBody = html
	msg.Subtype = SubtypeHTML
	return nil
}

// deliver owns one session for the duration of a single send.
func (m *Mail) deliver(ctx context.Context, built *MIMEMessage) error {
	session, err := m.transport.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			m.logger.WarnContext(ctx, "failed to close mail session", logger.Error(cerr))
		}
	}()

	if m.settings.SuppressSend {
		return nil
	}
	return session.Send(ctx, built)
}

// MessageOption sets optional fields for SendMail.
type MessageOption func(*MessageParams)

// WithHTML sets the raw HTML body.
func WithHTML(html string) MessageOption {
	return func(p *MessageParams) {
		p.HTML = html
	}
}

// WithCC sets carbon copy recipients.
func WithCC(addrs ...string) MessageOption {
	return func(p *MessageParams) {
		p.CC = append(p.CC, addrs...)
	}
}

// WithBCC sets blind carbon copy recipients.
func WithBCC(addrs ...string) MessageOption {
	return func(p *MessageParams) {
		p.BCC = append(p.BCC, addrs...)
	}
}

// WithReplyTo sets Reply-To addresses.
func WithReplyTo(addrs ...string) MessageOption {
	return func(p *MessageParams) {
		p.ReplyTo = append(p.ReplyTo, addrs...)
	}
}

// WithAttachments adds attachment sources.
func WithAttachments(sources ...AttachmentSource) MessageOption {
	return func(p *MessageParams) {
		p.Attachments = append(p.Attachments, sources...)
	}
}

// WithParams edits the message parameters directly.
func WithParams(fn func(*MessageParams)) MessageOption {
	return func(p *MessageParams) {
		if fn != nil {
			fn(p)
		}
	}
}

// SendMail constructs a message from its arguments and sends it.
func (m *Mail) SendMail(ctx context.Context, subject, body string, recipients []string, opts ...MessageOption) error {
	p := MessageParams{
		Subject:    subject,
		Body:       body,
		Recipients: recipients,
	}
	for _, opt := range opts {
		opt(&p)
	}

	msg, err := NewMessage(p)
	if err != nil {
		return err
	}
	return m.SendMessage(ctx, msg)
}

// MassMail is one entry of SendMassMail.
type MassMail struct {
	Subject    string
	Body       string
	Recipients []string
}

// SendMassMail sends each entry in order with SendMail. The first failure
// aborts the batch; entries before it have already been sent.
func (m *Mail) SendMassMail(ctx context.Context, mails []MassMail) error {
	for i, mm := range mails {
		if err := m.SendMail(ctx, mm.Subject, mm.Body, mm.Recipients); err != nil {
			return fmt.Errorf("mass mail entry %d: %w", i, err)
		}
	}
	return nil
}

// Subscribe registers fn to be called with every dispatched message.
// The returned function removes it; calling it more than once is a no-op.
func (m *Mail) Subscribe(fn DispatchFunc) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	return m.dispatcher.subscribe(fn)
}

// RecordMessages captures every message dispatched while fn runs.
// Capture stops when fn returns or panics.
func (m *Mail) RecordMessages(fn func(*Outbox) error) error {
	outbox := &Outbox{}
	unsubscribe := m.Subscribe(outbox.record)
	defer unsubscribe()

	return fn(outbox)
}
