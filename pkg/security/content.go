package security

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxContentLength caps sanitized plain-text content at 1 MB.
const DefaultMaxContentLength = 1_000_000

const truncatedSuffix = "... [content truncated for security]"

var crlf = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// SanitizeContent flattens line breaks to spaces and truncates content to
// maxLen bytes (DefaultMaxContentLength when maxLen <= 0). Use it for values
// that end up in headers or single-line fields.
func SanitizeContent(content string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentLength
	}

	out := crlf.Replace(content)
	if len(out) > maxLen {
		out = strings.ToValidUTF8(out[:maxLen], "") + truncatedSuffix
	}
	return strings.TrimSpace(out)
}

var (
	emailPolicy *bluemonday.Policy
	stripPolicy *bluemonday.Policy
	policyOnce  sync.Once
)

func initPolicies() {
	policyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()

		// Email clients ignore scripts anyway; keep the layout markup they do render.
		emailPolicy = bluemonday.UGCPolicy()
		emailPolicy.AllowElements("center", "font", "span", "div")
		emailPolicy.AllowAttrs("style").Globally()
		emailPolicy.AllowAttrs("align", "valign", "width", "height", "bgcolor").Globally()
		emailPolicy.AllowAttrs("color", "face", "size").OnElements("font")
		emailPolicy.AllowStyles("color", "background-color", "font-size", "font-weight", "font-family",
			"text-align", "text-decoration", "padding", "margin", "border", "width", "max-width").Globally()
		emailPolicy.RequireNoFollowOnLinks(false)
	})
}

// HTMLPolicy returns the policy SanitizeHTML uses, for mailing.WithHTMLPolicy.
func HTMLPolicy() *bluemonday.Policy {
	initPolicies()
	return emailPolicy
}

// SanitizeHTML removes scripts, event handlers and javascript: URLs while
// keeping the tables, inline styles and formatting used by email layouts.
func SanitizeHTML(s string) string {
	initPolicies()
	return emailPolicy.Sanitize(s)
}

// StripHTML removes all markup and returns the text content.
func StripHTML(s string) string {
	initPolicies()
	return stripPolicy.Sanitize(s)
}
