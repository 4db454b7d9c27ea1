package security

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrymomot/mailing"
)

const maxFilenameLength = 255

var dangerousExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".pif": {}, ".scr": {}, ".vbs": {}, ".js": {},
	".jar": {}, ".sh": {}, ".ps1": {}, ".msi": {}, ".dll": {}, ".sys": {}, ".reg": {}, ".hta": {},
	".cpl": {}, ".msc": {}, ".inf": {}, ".scf": {}, ".lnk": {}, ".ws": {}, ".wsf": {}, ".wsh": {},
}

var suspiciousTypes = map[string]struct{}{
	"application/x-executable":    {},
	"application/x-msdownload":    {},
	"application/x-msdos-program": {},
	"application/x-sh":            {},
	"application/x-shellscript":   {},
}

// AttachmentReport is the outcome of CheckAttachment. A suspicious content
// type adds a warning without making the attachment unsafe.
type AttachmentReport struct {
	Filename string
	Warnings []string
	Safe     bool
}

// Err returns an ErrUnsafeAttachment error when the attachment is not safe.
func (r AttachmentReport) Err() error {
	if r.Safe {
		return nil
	}
	return errors.Join(ErrSecurity, fmt.Errorf("%w: %q: %s", ErrUnsafeAttachment, r.Filename, strings.Join(r.Warnings, "; ")))
}

// CheckAttachment inspects a filename and optional content type.
func CheckAttachment(filename, contentType string) AttachmentReport {
	r := AttachmentReport{Filename: filename, Safe: true}
	unsafe := func(w string) {
		r.Safe = false
		r.Warnings = append(r.Warnings, w)
	}

	if ext := strings.ToLower(path.Ext(filename)); ext != "" {
		if _, ok := dangerousExtensions[ext]; ok {
			unsafe("potentially dangerous file extension: " + ext)
		}
	}
	if len(filename) > maxFilenameLength {
		unsafe("filename too long")
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		unsafe("filename contains path traversal characters")
	}
	if strings.ContainsRune(filename, 0) {
		unsafe("filename contains null bytes")
	}
	if _, ok := suspiciousTypes[strings.ToLower(contentType)]; ok {
		r.Warnings = append(r.Warnings, "suspicious content type: "+contentType)
	}
	return r
}

// CheckMessage runs CheckAttachment on every attachment of msg and joins the failures.
func CheckMessage(msg *mailing.Message) error {
	var errs []error
	for _, a := range msg.Attachments {
		if a.File == nil {
			continue
		}
		if err := CheckAttachment(a.File.Name, a.File.ContentType).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsValidHeaderValue reports whether v is free of CR, LF and NUL.
func IsValidHeaderValue(v string) bool {
	return !strings.ContainsAny(v, "\r\n\x00")
}

// CheckHeaders returns ErrInvalidHeader for the first unsafe value.
func CheckHeaders(headers map[string]string) error {
	for k, v := range headers {
		if !IsValidHeaderValue(k) || !IsValidHeaderValue(v) {
			return errors.Join(ErrSecurity, fmt.Errorf("%w: %s", ErrInvalidHeader, k))
		}
	}
	return nil
}
