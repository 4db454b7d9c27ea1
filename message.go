package mailing

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MultipartSubtype selects the kind of the root multipart container.
// See https://en.wikipedia.org/wiki/MIME#Multipart_subtypes.
type MultipartSubtype string

const (
	MultipartMixed        MultipartSubtype = "mixed"
	MultipartDigest       MultipartSubtype = "digest"
	MultipartAlternative  MultipartSubtype = "alternative"
	MultipartRelated      MultipartSubtype = "related"
	MultipartReport       MultipartSubtype = "report"
	MultipartSigned       MultipartSubtype = "signed"
	MultipartEncrypted    MultipartSubtype = "encrypted"
	MultipartFormData     MultipartSubtype = "form-data"
	MultipartMixedReplace MultipartSubtype = "x-mixed-replace"
	MultipartByteRange    MultipartSubtype = "byterange"
)

// Valid reports whether s is a known multipart subtype.
func (s MultipartSubtype) Valid() bool {
	switch s {
	case MultipartMixed, MultipartDigest, MultipartAlternative, MultipartRelated, MultipartReport,
		MultipartSigned, MultipartEncrypted, MultipartFormData, MultipartMixedReplace, MultipartByteRange:
		return true
	}
	return false
}

const (
	// SubtypePlain marks a message whose body is plain text.
	SubtypePlain = "plain"
	// SubtypeHTML marks a message whose body (or rendered template) is HTML.
	SubtypeHTML = "html"

	defaultCharset = "utf-8"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// MessageParams holds the raw fields a Message is constructed from.
type MessageParams struct {
	// TemplateBody is the data merged into a named template: a mapping (map or
	// struct) or a sequence (slice). After rendering it holds the rendered string.
	TemplateBody any
	// TemplateParams is an alias for TemplateBody, used only when TemplateBody is empty.
	TemplateParams any

	Subject string
	Body    string // Plain text body
	HTML    string // Raw HTML body
	Charset string // Default: utf-8
	Subtype string // "plain" or "html"; forced to "html" when TemplateBody is set

	MultipartSubtype MultipartSubtype // Default: mixed

	// AttachmentRoot is the directory path attachments must live under.
	// Default: the process working directory.
	AttachmentRoot string

	Recipients  []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Attachments []AttachmentSource
}

// Message describes the content and recipients of one email.
// Create it with NewMessage; the facade refuses messages built any other way.
type Message struct {
	TemplateBody any

	Subject string
	Body    string
	HTML    string
	Charset string
	Subtype string

	MultipartSubtype MultipartSubtype

	Recipients  []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Attachments []Attachment

	validated bool
}

// validationStage is one step of the construction pipeline. Stages run in
// order, each reading what the previous ones wrote into msg.
type validationStage func(msg *Message, p *MessageParams) error

var messagePipeline = []validationStage{
	validateAddresses,
	aliasTemplateParams,
	forceSubtype,
	normalizeAttachments,
	applyDefaults,
}

// NewMessage validates params and returns a Message ready to be sent.
func NewMessage(p MessageParams) (*Message, error) {
	msg := &Message{
		TemplateBody:     p.TemplateBody,
		Subject:          strings.TrimSpace(p.Subject),
		Body:             p.Body,
		HTML:             p.HTML,
		Charset:          p.Charset,
		Subtype:          p.Subtype,
		MultipartSubtype: p.MultipartSubtype,
	}

	for _, stage := range messagePipeline {
		if err := stage(msg, &p); err != nil {
			return nil, err
		}
	}

	msg.validated = true
	return msg, nil
}

// AddRecipient appends one address to the recipients.
func (m *Message) AddRecipient(address string) error {
	address = strings.TrimSpace(address)
	if err := checkAddress(address); err != nil {
		return err
	}
	m.Recipients = append(m.Recipients, address)
	return nil
}

// Validated reports whether the message was produced by NewMessage.
func (m *Message) Validated() bool {
	return m != nil && m.validated
}

func (m *Message) String() string {
	return fmt.Sprintf("<Message: %s>", m.Subject)
}

func validateAddresses(msg *Message, p *MessageParams) error {
	fields := []struct {
		name string
		src  []string
		dst  *[]string
	}{
		{"recipients", p.Recipients, &msg.Recipients},
		{"cc", p.CC, &msg.CC},
		{"bcc", p.BCC, &msg.BCC},
		{"reply_to", p.ReplyTo, &msg.ReplyTo},
	}

	for _, f := range fields {
		out := make([]string, 0, len(f.src))
		for _, addr := range f.src {
			addr = strings.TrimSpace(addr)
			if err := checkAddress(addr); err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			out = append(out, addr)
		}
		*f.dst = out
	}
	return nil
}

func aliasTemplateParams(msg *Message, p *MessageParams) error {
	if !isEmpty(p.TemplateParams) && isEmpty(msg.TemplateBody) {
		msg.TemplateBody = p.TemplateParams
	}
	return nil
}

func forceSubtype(msg *Message, _ *MessageParams) error {
	if !isEmpty(msg.TemplateBody) {
		msg.Subtype = SubtypeHTML
	}
	return nil
}

func normalizeAttachments(msg *Message, p *MessageParams) error {
	if len(p.Attachments) == 0 {
		return nil
	}

	attachments, err := resolveAttachments(p.AttachmentRoot, p.Attachments)
	if err != nil {
		return err
	}
	msg.Attachments = attachments
	return nil
}

func applyDefaults(msg *Message, _ *MessageParams) error {
	if msg.Charset == "" {
		msg.Charset = defaultCharset
	}
	if msg.MultipartSubtype == "" {
		msg.MultipartSubtype = MultipartMixed
	}
	if !msg.MultipartSubtype.Valid() {
		return validationError(ErrInvalidMultipart, "%q", msg.MultipartSubtype)
	}
	return nil
}

func checkAddress(addr string) error {
	if err := validate.Var(addr, "required,email"); err != nil {
		return validationError(ErrInvalidAddress, "%q", addr)
	}
	return nil
}

func validationError(kind error, format string, args ...any) error {
	return errors.Join(ErrValidation, fmt.Errorf("%w: "+format, append([]any{kind}, args...)...))
}

// isEmpty reports whether v is nil or a zero-length string, slice, array or map.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// templateBodyString returns the template body if it has been rendered to a string.
func (m *Message) templateBodyString() string {
	switch v := m.TemplateBody.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
