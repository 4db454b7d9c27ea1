package mailing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"mime"
	"mime/quotedprintable"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"

	"github.com/dmitrymomot/mailing/pkg/logger"
)

const defaultAttachmentName = "attachment"

// Part is one node of a MIME tree. Leaf parts carry their content in Body
// (already encoded into the part charset, not yet transfer-encoded);
// multipart nodes carry children in Parts.
type Part struct {
	Header message.Header
	Body   []byte
	Parts  []*Part
}

// ContentType returns the media type of the part, e.g. "text/plain".
func (p *Part) ContentType() string {
	t, _, _ := p.Header.ContentType()
	return t
}

// Filename returns the decoded filename from Content-Disposition, if any.
func (p *Part) Filename() string {
	_, params, err := p.Header.ContentDisposition()
	if err != nil {
		return ""
	}
	return params["filename"]
}

// Disposition returns the Content-Disposition value without parameters.
func (p *Part) Disposition() string {
	disp, _, err := p.Header.ContentDisposition()
	if err != nil {
		return ""
	}
	return disp
}

// MIMEMessage is a complete multipart message plus the SMTP envelope it is sent with.
type MIMEMessage struct {
	Part

	From       string   // Envelope sender, bare address
	Recipients []string // Envelope recipients: To, Cc and Bcc
}

// Subject returns the decoded Subject header.
func (m *MIMEMessage) Subject() string {
	h := mail.Header{Header: m.Header}
	s, err := h.Subject()
	if err != nil {
		return m.Header.Get("Subject")
	}
	return s
}

// MessageID returns the Message-ID header, angle brackets included.
func (m *MIMEMessage) MessageID() string {
	return m.Header.Get("Message-ID")
}

// TextBody returns the content of the first text/plain leaf part.
func (m *MIMEMessage) TextBody() (string, bool) {
	return m.firstLeaf("text/plain")
}

// HTMLBody returns the content of the first text/html leaf part.
func (m *MIMEMessage) HTMLBody() (string, bool) {
	return m.firstLeaf("text/html")
}

// Leaves returns the leaf parts in document order.
func (m *MIMEMessage) Leaves() []*Part {
	var out []*Part
	var walk func(p *Part)
	walk = func(p *Part) {
		if len(p.Parts) == 0 {
			out = append(out, p)
			return
		}
		for _, child := range p.Parts {
			walk(child)
		}
	}
	for _, child := range m.Parts {
		walk(child)
	}
	return out
}

// AttachmentParts returns the leaves carrying a Content-Disposition.
func (m *MIMEMessage) AttachmentParts() []*Part {
	var out []*Part
	for _, p := range m.Leaves() {
		if p.Disposition() != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m *MIMEMessage) firstLeaf(contentType string) (string, bool) {
	for _, p := range m.Leaves() {
		if p.Disposition() == "" && p.ContentType() == contentType {
			return string(p.Body), true
		}
	}
	return "", false
}

// WriteTo serializes the full message, Bcc header included.
func (m *MIMEMessage) WriteTo(w io.Writer) (int64, error) {
	return m.write(w, false)
}

// Bytes returns the serialized message.
func (m *MIMEMessage) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String returns the serialized message, or an empty string if it cannot be serialized.
func (m *MIMEMessage) String() string {
	b, err := m.Bytes()
	if err != nil {
		return ""
	}
	return string(b)
}

// write serializes the tree. go-message's Writer only accepts utf-8 and
// us-ascii parts, so entities are written with its textproto layer and the
// transfer encoding is applied by writeBody.
func (m *MIMEMessage) write(w io.Writer, stripBcc bool) (int64, error) {
	cw := &countingWriter{w: w}

	header := m.Header.Copy()
	if stripBcc {
		header.Del("Bcc")
	}

	root := func(h textproto.Header) (io.Writer, error) {
		return cw, textproto.WriteHeader(cw, h)
	}
	err := writeEntity(header, &m.Part, root)
	return cw.n, err
}

// writeEntity writes p under header h. open writes the header and returns the
// body writer. h is modified: multipart nodes get their boundary parameter.
func writeEntity(h message.Header, p *Part, open func(textproto.Header) (io.Writer, error)) error {
	if len(p.Parts) == 0 {
		w, err := open(h.Header)
		if err != nil {
			return err
		}
		return writeBody(w, h.Get("Content-Transfer-Encoding"), p.Body)
	}

	out := &struct{ io.Writer }{}
	mw := textproto.NewMultipartWriter(out)

	mediaType, params, err := h.ContentType()
	if err != nil {
		return err
	}
	if params == nil {
		params = make(map[string]string, 1)
	}
	params["boundary"] = mw.Boundary()
	h.SetContentType(mediaType, params)

	w, err := open(h.Header)
	if err != nil {
		return err
	}
	out.Writer = w

	for _, child := range p.Parts {
		if err := writeEntity(child.Header.Copy(), child, mw.CreatePart); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeBody(w io.Writer, encoding string, body []byte) error {
	var wc io.WriteCloser
	switch strings.ToLower(encoding) {
	case "quoted-printable":
		wc = quotedprintable.NewWriter(w)
	case "base64":
		wc = base64.NewEncoder(base64.StdEncoding, &lineWrapper{w: w, max: 76})
	default:
		_, err := w.Write(body)
		return err
	}

	if _, err := wc.Write(body); err != nil {
		return err
	}
	return wc.Close()
}

// lineWrapper inserts CRLF every max bytes.
type lineWrapper struct {
	w   io.Writer
	max int
	n   int
}

func (l *lineWrapper) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		if l.n == l.max {
			if _, err := io.WriteString(l.w, "\r\n"); err != nil {
				return written, err
			}
			l.n = 0
		}
		chunk := min(len(p), l.max-l.n)
		n, err := l.w.Write(p[:chunk])
		written += n
		l.n += n
		if err != nil {
			return written, err
		}
		p = p[chunk:]
	}
	return written, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Builder turns validated messages into MIME trees.
type Builder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder creates a builder. A nil logger discards output.
func NewBuilder(log *slog.Logger) *Builder {
	if log == nil {
		log = logger.NewNope()
	}
	return &Builder{logger: log, now: time.Now}
}

var defaultBuilder = NewBuilder(nil)

// Build constructs the MIME message for msg with the default builder.
func Build(msg *Message, sender string) (*MIMEMessage, error) {
	return defaultBuilder.Build(msg, sender)
}

// Build constructs the MIME message for msg sent by sender ("Name <addr>" or a
// bare address). The result only differs between calls in Date and Message-ID.
func (b *Builder) Build(msg *Message, sender string) (*MIMEMessage, error) {
	if msg == nil {
		return nil, errors.Join(ErrValidation, ErrMessageRequired)
	}

	charset := msg.Charset
	if charset == "" {
		charset = defaultCharset
	}
	multipart := msg.MultipartSubtype
	if multipart == "" {
		multipart = MultipartMixed
	}

	from, err := mail.ParseAddress(sender)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("%w: sender %q", ErrInvalidAddress, sender), err)
	}

	var h mail.Header
	h.Set("MIME-Version", "1.0")
	h.SetContentType("multipart/"+string(multipart), map[string]string{"charset": charset})
	h.SetDate(b.now())
	h.Set("Message-ID", newMessageID())
	h.Set("To", strings.Join(msg.Recipients, ", "))
	h.Set("From", sender)
	if msg.Subject != "" {
		h.SetSubject(msg.Subject)
	}
	if len(msg.CC) > 0 {
		h.Set("Cc", strings.Join(msg.CC, ", "))
	}
	if len(msg.BCC) > 0 {
		h.Set("Bcc", strings.Join(msg.BCC, ", "))
	}
	if len(msg.ReplyTo) > 0 {
		h.Set("Reply-To", strings.Join(msg.ReplyTo, ", "))
	}

	parts, err := b.bodyParts(msg, charset)
	if err != nil {
		return nil, err
	}

	for _, a := range msg.Attachments {
		p, err := attachmentPart(a)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	return &MIMEMessage{
		Part:       Part{Header: h.Header, Parts: parts},
		From:       from.Address,
		Recipients: slices.Concat(msg.Recipients, msg.CC, msg.BCC),
	}, nil
}

// bodyParts applies the body policy: the plain body first, then either the
// rendered template (or the body as HTML) or the raw HTML.
func (b *Builder) bodyParts(msg *Message, charset string) ([]*Part, error) {
	var parts []*Part

	if msg.Body != "" {
		p, err := textPart(msg.Body, SubtypePlain, charset)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	hasTemplate := !isEmpty(msg.TemplateBody)
	switch {
	case hasTemplate || msg.Body != "":
		if msg.HTML == "" && msg.Subtype == SubtypeHTML {
			content := msg.templateBodyString()
			if !hasTemplate {
				b.logger.Warn("using body as html content is deprecated, pass template data in TemplateBody instead",
					slog.String("subject", msg.Subject))
				content = msg.Body
			}
			p, err := textPart(content, SubtypeHTML, charset)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		} else if hasTemplate {
			return nil, errors.Join(ErrValidation, ErrContentConflict)
		}
	case msg.HTML != "":
		p, err := textPart(msg.HTML, SubtypeHTML, charset)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	return parts, nil
}

func textPart(content, subtype, charset string) (*Part, error) {
	data, err := encodeCharset(content, charset)
	if err != nil {
		return nil, err
	}

	var h message.Header
	h.SetContentType("text/"+subtype, map[string]string{"charset": charset})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	return &Part{Header: h, Body: data}, nil
}

func attachmentPart(a Attachment) (*Part, error) {
	if a.File == nil || a.File.Reader == nil {
		return nil, validationError(ErrWrongFile, "attachment has no content")
	}

	data, err := readFile(a.File)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("%w: %q", ErrWrongFile, a.File.Name), err)
	}

	mediaType := "application/octet-stream"
	if a.Meta != nil && a.Meta.MimeType != "" && a.Meta.MimeSubtype != "" {
		mediaType = a.Meta.MimeType + "/" + a.Meta.MimeSubtype
	}

	disposition := a.Disposition
	if disposition == "" {
		disposition = DispositionAttachment
	}

	var h message.Header
	h.SetContentType(mediaType, nil)
	h.Set("Content-Transfer-Encoding", "base64")
	// Set directly: go-message would turn a non-ASCII filename into an encoded word.
	h.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": attachmentName(a.File.Name)}))

	if a.Meta != nil {
		for _, k := range slices.Sorted(maps.Keys(a.Meta.Headers)) {
			h.Add(k, a.Meta.Headers[k])
		}
	}

	return &Part{Header: h, Body: data}, nil
}

// attachmentName normalizes non-ASCII names to NFC; mime.FormatMediaType then
// writes them as RFC 2231 parameters (filename*=utf-8''...).
func attachmentName(name string) string {
	if name == "" {
		return defaultAttachmentName
	}
	return norm.NFC.String(name)
}

func encodeCharset(content, charset string) ([]byte, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return []byte(content), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, validationError(ErrUnsupportedCharset, "%q", charset)
	}
	out, err := enc.NewEncoder().String(content)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("content cannot be encoded as %s", charset), err)
	}
	return []byte(out), nil
}

var hostname = sync.OnceValue(func() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
})

func newMessageID() string {
	return "<" + uuid.NewString() + "@" + hostname() + ">"
}
