package markdown

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
)

func convert(t *testing.T, class, source string) string {
	t.Helper()

	md := goldmark.New(goldmark.WithExtensions(Button(class)))
	var buf bytes.Buffer
	require.NoError(t, md.Convert([]byte(source), &buf))
	return buf.String()
}

func TestButton_Renders(t *testing.T) {
	t.Parallel()

	out := convert(t, "", `[!button|Confirm](https://example.com/confirm?t=1)`)
	require.Contains(t, out, `<a href="https://example.com/confirm?t=1" class="btn">Confirm</a>`)
}

func TestButton_CustomClass(t *testing.T) {
	t.Parallel()

	out := convert(t, "cta primary", `[!button|Open](https://example.com)`)
	require.Contains(t, out, `class="cta primary"`)
}

func TestButton_UnsafeScheme(t *testing.T) {
	t.Parallel()

	out := convert(t, "", `[!button|<b>Click</b>](javascript:alert(1))`)
	require.NotContains(t, out, "<a ")
	require.NotContains(t, out, "<b>")
	require.Contains(t, out, "&lt;b&gt;Click&lt;/b&gt;")
}

func TestButton_InParagraph(t *testing.T) {
	t.Parallel()

	out := convert(t, "", "# Welcome\n\nPlease verify:\n\n[!button|Verify](https://example.com/verify)\n\nThanks!")
	require.Contains(t, out, "<h1>Welcome</h1>")
	require.Contains(t, out, `<a href="https://example.com/verify" class="btn">Verify</a>`)
	require.Contains(t, out, "<p>Thanks!</p>")
}

func TestButton_RegularLinksUntouched(t *testing.T) {
	t.Parallel()

	out := convert(t, "", `[docs](https://example.com/docs) and [!button|broken`)
	require.Contains(t, out, `<a href="https://example.com/docs">docs</a>`)
	require.Contains(t, out, "[!button|broken")
}
