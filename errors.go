package mailing

import "errors"

// Error kinds. Every error returned by this package matches exactly one of them
// with errors.Is, plus a more specific sentinel below.
var (
	// ErrValidation indicates invalid input: a malformed address, a bad attachment,
	// conflicting body content or a message that was not built with NewMessage.
	ErrValidation = errors.New("mailing: validation error")

	// ErrConfiguration indicates missing or invalid connection settings.
	ErrConfiguration = errors.New("mailing: configuration error")

	// ErrConnection indicates the SMTP session could not be established or used.
	ErrConnection = errors.New("mailing: connection error")
)

var (
	// ErrInvalidAddress indicates an address is not of the form local-part@domain.
	ErrInvalidAddress = errors.New("invalid email address")

	// ErrWrongFile indicates an attachment source is unreadable, not a regular file,
	// outside the permitted root or malformed.
	ErrWrongFile = errors.New("invalid file")

	// ErrContentConflict indicates a message carries both unrendered template content and raw HTML.
	ErrContentConflict = errors.New("cannot send both template content and html content")

	// ErrMessageRequired indicates the facade received a nil or unvalidated message.
	ErrMessageRequired = errors.New("message must be created with NewMessage")

	// ErrNoRecipient indicates no recipient was specified.
	ErrNoRecipient = errors.New("email must have at least one recipient")

	// ErrTemplateData indicates template data is neither a sequence nor a mapping.
	ErrTemplateData = errors.New("unable to build template data")

	// ErrUnsupportedCharset indicates the message charset has no known encoder.
	ErrUnsupportedCharset = errors.New("unsupported charset")

	// ErrInvalidMultipart indicates an unknown multipart subtype.
	ErrInvalidMultipart = errors.New("invalid multipart subtype")
)

var (
	// ErrMissingSetting indicates a required configuration key is absent.
	ErrMissingSetting = errors.New("missing required configuration")

	// ErrTemplateFolder indicates the template folder does not exist, is not a
	// directory or is not readable.
	ErrTemplateFolder = errors.New("template folder error")

	// ErrTemplateEngine indicates a template was requested but no engine is available.
	ErrTemplateEngine = errors.New("no template engine configured")
)

var (
	// ErrAuthentication indicates the server rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")

	// ErrConnect indicates the server could not be reached.
	ErrConnect = errors.New("could not connect to smtp server")

	// ErrProtocol indicates the server answered with an unexpected SMTP reply.
	ErrProtocol = errors.New("smtp error")

	// ErrTimeout indicates a network operation exceeded its deadline.
	ErrTimeout = errors.New("connection timed out")

	// ErrNotConnected indicates Send was called on a session without an open transport.
	ErrNotConnected = errors.New("smtp session is not connected")
)

var (
	// ErrTemplateNotFound indicates the template file was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrRenderFailed indicates template rendering failed.
	ErrRenderFailed = errors.New("failed to render template")

	// ErrSendFailed indicates email sending failed.
	ErrSendFailed = errors.New("failed to send email")
)
