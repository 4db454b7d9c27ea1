// Package markdown renders email templates written in markdown.
//
// A template is a markdown file with optional YAML frontmatter:
//
//	---
//	Subject: Welcome {{.name}}
//	---
//	Hello **{{.name}}**!
//
//	[!button|Confirm your address](https://example.com/confirm)
//
// The body is executed with text/template, converted to HTML by goldmark and
// placed into a layout (an html/template file receiving .Content, .Subject and
// .Metadata). The [!button|Label](url) syntax renders a styled call-to-action link.
//
// Engine implements mailing.TemplateEngine:
//
//	engine := markdown.New(os.DirFS("emails"), markdown.Config{DefaultLayout: "base.html"})
//	mail, err := mailing.New(settings, mailing.WithTemplateEngine(engine))
//	err = mail.SendMessage(ctx, msg, mailing.WithTemplate("welcome.md"))
package markdown
