package mailing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DispositionAttachment is the default Content-Disposition of attached files.
	DispositionAttachment = "attachment"
	// DispositionInline marks a part to be displayed inline.
	DispositionInline = "inline"
)

// File is an in-memory attachment handle.
type File struct {
	Reader      io.Reader
	Name        string // Display name; "attachment" when empty
	ContentType string // Informational MIME type, e.g. guessed from the extension
}

// AttachmentMeta customizes how an attachment part is built.
type AttachmentMeta struct {
	Headers     map[string]string // Extra part headers, applied verbatim
	MimeType    string            // e.g. "application"
	MimeSubtype string            // e.g. "pdf"
}

// AttachmentSource is one raw attachment entry: either a filesystem path or an
// in-memory file, optionally paired with metadata. An entry carrying metadata
// but neither Path nor File is rejected.
type AttachmentSource struct {
	File *File
	Meta *AttachmentMeta
	Path string
}

// AttachPath returns a source reading the file at path.
func AttachPath(path string) AttachmentSource {
	return AttachmentSource{Path: path}
}

// AttachReader returns a source wrapping an in-memory reader.
func AttachReader(name string, r io.Reader) AttachmentSource {
	return AttachmentSource{File: &File{Name: name, Reader: r}}
}

// Attachment is a validated attachment: a readable handle plus optional metadata.
type Attachment struct {
	File        *File
	Meta        *AttachmentMeta
	Disposition string
}

// AttachOption configures Message.Attach.
type AttachOption func(*Attachment)

// WithContentType sets the attachment MIME type, e.g. "application/pdf".
// The type is also used for the built part.
func WithContentType(contentType string) AttachOption {
	return func(a *Attachment) {
		a.File.ContentType = contentType
		mainType, subType, ok := strings.Cut(contentType, "/")
		if !ok {
			return
		}
		if a.Meta == nil {
			a.Meta = &AttachmentMeta{}
		}
		a.Meta.MimeType = mainType
		a.Meta.MimeSubtype = subType
	}
}

// WithDisposition overrides the Content-Disposition ("attachment" by default).
func WithDisposition(disposition string) AttachOption {
	return func(a *Attachment) {
		if disposition != "" {
			a.Disposition = disposition
		}
	}
}

// WithHeaders adds extra headers to the attachment part.
func WithHeaders(headers map[string]string) AttachOption {
	return func(a *Attachment) {
		if len(headers) == 0 {
			return
		}
		if a.Meta == nil {
			a.Meta = &AttachmentMeta{}
		}
		a.Meta.Headers = headers
	}
}

// Attach adds raw data as an attachment. The content type is guessed from
// the filename extension unless WithContentType is given.
func (m *Message) Attach(filename string, data []byte, opts ...AttachOption) error {
	if filename == "" {
		return validationError(ErrWrongFile, "attachment filename is empty")
	}

	a := Attachment{
		File: &File{
			Name:        filename,
			ContentType: mime.TypeByExtension(filepath.Ext(filename)),
			Reader:      bytes.NewReader(data),
		},
		Disposition: DispositionAttachment,
	}
	for _, opt := range opts {
		opt(&a)
	}

	m.Attachments = append(m.Attachments, a)
	return nil
}

// resolveAttachments normalizes raw sources into (handle, metadata) pairs.
// Path sources are opened through an os.Root on root, so nothing outside it is readable.
func resolveAttachments(root string, sources []AttachmentSource) ([]Attachment, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Join(ErrValidation, ErrWrongFile, err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Join(ErrValidation, ErrWrongFile, err)
	}

	out := make([]Attachment, 0, len(sources))
	for _, src := range sources {
		var file *File
		switch {
		case src.Path != "":
			file, err = openAttachment(root, src.Path)
			if err != nil {
				return nil, err
			}
		case src.File != nil:
			if src.File.Reader == nil {
				return nil, validationError(ErrWrongFile, "attachment %q has no content", src.File.Name)
			}
			file, err = bufferFile(src.File)
			if err != nil {
				return nil, err
			}
		case src.Meta != nil:
			return nil, validationError(ErrWrongFile, `missing "file" in attachment entry`)
		default:
			return nil, validationError(ErrWrongFile, "attachment must be a file path or an in-memory file")
		}

		out = append(out, Attachment{File: file, Meta: src.Meta, Disposition: DispositionAttachment})
	}
	return out, nil
}

func openAttachment(root, path string) (*File, error) {
	if strings.Contains(path, "..") || strings.ContainsRune(path, 0) {
		return nil, validationError(ErrWrongFile, "path %q contains traversal characters", path)
	}

	rel := filepath.Clean(path)
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(root, rel)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return nil, validationError(ErrWrongFile, "path %q is outside %q", path, root)
		}
		rel = r
	}

	dir, err := os.OpenRoot(root)
	if err != nil {
		return nil, errors.Join(ErrValidation, ErrWrongFile, err)
	}
	defer dir.Close()

	info, err := dir.Stat(rel)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("%w: %q is inaccessible", ErrWrongFile, path), err)
	}
	if !info.Mode().IsRegular() {
		return nil, validationError(ErrWrongFile, "%q is not a regular file", path)
	}

	f, err := dir.Open(rel)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("%w: %q is not readable", ErrWrongFile, path), err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("%w: %q is not readable", ErrWrongFile, path), err)
	}

	name := filepath.Base(rel)
	return &File{
		Name:        name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Reader:      bytes.NewReader(data),
	}, nil
}

// bufferFile reads a non-seekable reader into memory so the attachment can be
// built more than once. Seekable readers are kept as given.
func bufferFile(f *File) (*File, error) {
	if _, ok := f.Reader.(io.ReadSeeker); ok {
		return f, nil
	}

	data, err := io.ReadAll(f.Reader)
	if err != nil {
		return nil, errors.Join(ErrValidation, fmt.Errorf("%w: %q is not readable", ErrWrongFile, f.Name), err)
	}
	buffered := *f
	buffered.Reader = bytes.NewReader(data)
	return &buffered, nil
}

// readFile returns the full content of f, rewinding seekable readers first so a
// message can be built more than once.
func readFile(f *File) ([]byte, error) {
	if s, ok := f.Reader.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return io.ReadAll(f.Reader)
}
