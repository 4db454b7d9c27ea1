package resend

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/resend/resend-go/v3"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/dmitrymomot/mailing"
)

// ErrEmptyMessage indicates a message without any text or HTML part.
var ErrEmptyMessage = errors.New("resend: message has no text or html content")

// emailSender is the subset of the Resend client the transport uses.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Transport delivers built messages through the Resend HTTP API.
// Sessions are stateless; Open never touches the network.
type Transport struct {
	emails emailSender
	tags   []resend.Tag
}

var _ mailing.Transport = (*Transport)(nil)

// New creates a transport using the Resend API key in cfg.
func New(cfg Config) *Transport {
	return newTransport(resend.NewClient(cfg.APIKey).Emails, cfg)
}

func newTransport(emails emailSender, cfg Config) *Transport {
	tags := make([]resend.Tag, 0, len(cfg.Tags))
	for _, name := range slices.Sorted(maps.Keys(cfg.Tags)) {
		tags = append(tags, resend.Tag{Name: name, Value: cfg.Tags[name]})
	}
	return &Transport{emails: emails, tags: tags}
}

// Open returns a session sending through the API.
func (t *Transport) Open(context.Context) (mailing.Session, error) {
	return session{t}, nil
}

type session struct {
	t *Transport
}

func (s session) Send(ctx context.Context, msg *mailing.MIMEMessage) error {
	req, err := Request(msg)
	if err != nil {
		return err
	}
	req.Tags = s.t.tags

	if _, err := s.t.emails.SendWithContext(ctx, req); err != nil {
		return errors.Join(mailing.ErrConnection, mailing.ErrSendFailed, fmt.Errorf("resend: %w", err))
	}
	return nil
}

func (session) Close() error { return nil }

// Request converts a built message into a Resend send request. Text and HTML
// come from the first body parts; leaves with a Content-Disposition become attachments.
func Request(msg *mailing.MIMEMessage) (*resend.SendEmailRequest, error) {
	if msg == nil {
		return nil, errors.Join(mailing.ErrValidation, mailing.ErrMessageRequired)
	}

	h := mail.Header{Header: msg.Header}
	req := &resend.SendEmailRequest{
		From:    h.Get("From"),
		To:      addressList(h, "To"),
		Cc:      addressList(h, "Cc"),
		Bcc:     addressList(h, "Bcc"),
		Subject: msg.Subject(),
		Headers: map[string]string{"Message-ID": msg.MessageID()},
	}
	if replyTo := addressList(h, "Reply-To"); len(replyTo) > 0 {
		req.ReplyTo = replyTo[0]
	}

	for _, p := range msg.Leaves() {
		if p.Disposition() != "" {
			ct, _, _ := p.Header.ContentType()
			req.Attachments = append(req.Attachments, &resend.Attachment{
				Filename:    p.Filename(),
				Content:     p.Body,
				ContentType: ct,
				ContentId:   strings.Trim(p.Header.Get("Content-ID"), "<>"),
			})
			continue
		}

		content, err := decodeBody(p)
		if err != nil {
			return nil, err
		}
		switch p.ContentType() {
		case "text/plain":
			if req.Text == "" {
				req.Text = content
			}
		case "text/html":
			if req.Html == "" {
				req.Html = content
			}
		}
	}

	if req.Text == "" && req.Html == "" {
		return nil, errors.Join(mailing.ErrValidation, ErrEmptyMessage)
	}
	return req, nil
}

func addressList(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		raw := h.Get(key)
		if raw == "" {
			return nil
		}
		var out []string
		for _, a := range strings.Split(raw, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
		return out
	}

	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Address
	}
	return out
}

// decodeBody returns a text part as UTF-8.
func decodeBody(p *mailing.Part) (string, error) {
	_, params, _ := p.Header.ContentType()
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" || charset == "utf8" {
		return string(p.Body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", errors.Join(mailing.ErrValidation, mailing.ErrUnsupportedCharset, err)
	}
	out, err := enc.NewDecoder().Bytes(p.Body)
	if err != nil {
		return "", errors.Join(mailing.ErrValidation, err)
	}
	return string(out), nil
}
