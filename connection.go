package mailing

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/mailing/pkg/logger"
)

// ConnectTimeout bounds dialing and the TLS handshake.
const ConnectTimeout = 30 * time.Second

// Transport opens delivery sessions. SMTPTransport is the default; pkg/resend
// provides an HTTP API alternative.
type Transport interface {
	Open(ctx context.Context) (Session, error)
}

// Session delivers built messages until it is closed.
type Session interface {
	Send(ctx context.Context, msg *MIMEMessage) error
	Close() error
}

type transportConfig struct {
	addr           string
	host           string
	port           int
	username       string
	password       string
	useTLS         bool // implicit TLS
	startTLS       bool
	useCredentials bool
	suppress       bool
	debug          bool
	timeout        time.Duration
	tls            *tls.Config
}

func newTransportConfig(s *Settings) transportConfig {
	return transportConfig{
		addr:           s.Addr(),
		host:           s.Server,
		port:           s.Port,
		username:       s.Username,
		password:       s.Password,
		useTLS:         s.UseSSL,
		startTLS:       s.UseTLS,
		useCredentials: s.UseCredentials,
		suppress:       s.SuppressSend,
		debug:          s.Debug > 0,
		timeout:        ConnectTimeout,
		tls: &tls.Config{
			ServerName:         s.Server,
			InsecureSkipVerify: !s.ValidateCerts, //nolint:gosec // opt-in via VALIDATE_CERTS
			MinVersion:         tls.VersionTLS12,
		},
	}
}

// ConnectOption configures Connect.
type ConnectOption func(*Connection)

// ConnLogger sets the logger for protocol steps.
func ConnLogger(l *slog.Logger) ConnectOption {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// ConnTokenSource authenticates with OAUTHBEARER using tokens from ts instead of the password.
func ConnTokenSource(ts oauth2.TokenSource) ConnectOption {
	return func(c *Connection) {
		c.tokens = ts
	}
}

// Connection is one SMTP session. It is not safe for concurrent use.
type Connection struct {
	cfg    transportConfig
	client *smtp.Client
	conn   net.Conn
	tokens oauth2.TokenSource
	logger *slog.Logger
}

// Connect opens and authenticates an SMTP session. With SUPPRESS_SEND set it
// returns a session that never touches the network.
func Connect(ctx context.Context, settings *Settings, opts ...ConnectOption) (*Connection, error) {
	if settings == nil {
		return nil, errors.Join(ErrConfiguration, errors.New("settings are required"))
	}

	c := &Connection{
		cfg:    newTransportConfig(settings),
		logger: logger.NewNope(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cfg.suppress {
		c.trace(ctx, "smtp connection suppressed")
		return c, nil
	}

	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	if c.cfg.useCredentials {
		if err := c.auth(ctx); err != nil {
			_ = c.client.Close()
			c.client, c.conn = nil, nil
			return nil, err
		}
	}

	return c, nil
}

// WithConnection opens a session, passes it to fn and closes it on every exit path.
func WithConnection(ctx context.Context, settings *Settings, fn func(*Connection) error, opts ...ConnectOption) error {
	conn, err := Connect(ctx, settings, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	return fn(conn)
}

func (c *Connection) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	addr := c.cfg.addr
	c.trace(ctx, "smtp dial", slog.String("addr", addr), slog.Bool("tls", c.cfg.useTLS), slog.Bool("starttls", c.cfg.startTLS))

	nd := &net.Dialer{Timeout: c.cfg.timeout}
	var (
		conn net.Conn
		err  error
	)
	if c.cfg.useTLS {
		td := &tls.Dialer{NetDialer: nd, Config: c.cfg.tls}
		conn, err = td.DialContext(dialCtx, "tcp", addr)
	} else {
		conn, err = nd.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return connectionError("dial "+addr, err)
	}

	// Greeting and STARTTLS share the connect deadline.
	_ = conn.SetDeadline(time.Now().Add(c.cfg.timeout))

	var client *smtp.Client
	if c.cfg.startTLS && !c.cfg.useTLS {
		// NewClientStartTLS greets the server itself.
		client, err = smtp.NewClientStartTLS(conn, c.cfg.tls)
		if err != nil {
			_ = conn.Close()
			return connectionError("starttls", err)
		}
	} else {
		client = smtp.NewClient(conn)
		if err := client.Hello(localName()); err != nil {
			_ = client.Close()
			return connectionError("hello", err)
		}
	}
	_ = conn.SetDeadline(time.Time{})

	client.CommandTimeout = c.cfg.timeout
	c.client = client
	c.conn = conn
	return nil
}

func (c *Connection) auth(ctx context.Context) error {
	if ok, _ := c.client.Extension("AUTH"); !ok {
		return errors.Join(ErrConnection, fmt.Errorf("%w: server does not advertise AUTH", ErrAuthentication))
	}

	var mech sasl.Client
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return errors.Join(ErrConnection, fmt.Errorf("%w: oauth2 token", ErrAuthentication), err)
		}
		mech = sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
			Username: c.cfg.username,
			Token:    tok.AccessToken,
			Host:     c.cfg.host,
			Port:     c.cfg.port,
		})
		c.trace(ctx, "smtp auth", slog.String("mechanism", sasl.OAuthBearer))
	} else {
		mech = sasl.NewPlainClient("", c.cfg.username, c.cfg.password)
		c.trace(ctx, "smtp auth", slog.String("mechanism", sasl.Plain))
	}

	if err := c.client.Auth(mech); err != nil {
		return connectionError("auth", err)
	}
	return nil
}

// Connected reports whether the session holds an open transport.
func (c *Connection) Connected() bool {
	return c != nil && c.client != nil
}

// Suppressed reports whether the session drops messages instead of sending them.
func (c *Connection) Suppressed() bool {
	return c != nil && c.cfg.suppress
}

// Send transmits msg to its envelope recipients. The Bcc header is not transmitted.
func (c *Connection) Send(ctx context.Context, msg *MIMEMessage) error {
	if msg == nil {
		return errors.Join(ErrValidation, ErrMessageRequired)
	}
	if c.Suppressed() {
		c.trace(ctx, "smtp send suppressed", slog.String("message_id", msg.MessageID()))
		return nil
	}
	if !c.Connected() {
		return errors.Join(ErrConnection, ErrNotConnected)
	}
	if len(msg.Recipients) == 0 {
		return errors.Join(ErrValidation, ErrNoRecipient)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(deadline)
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	c.trace(ctx, "smtp mail from", slog.String("from", msg.From))
	if err := c.client.Mail(msg.From, nil); err != nil {
		return sendError("mail from", err)
	}
	for _, rcpt := range msg.Recipients {
		c.trace(ctx, "smtp rcpt to", slog.String("to", rcpt))
		if err := c.client.Rcpt(rcpt, nil); err != nil {
			return sendError("rcpt to "+rcpt, err)
		}
	}

	w, err := c.client.Data()
	if err != nil {
		return sendError("data", err)
	}
	n, err := msg.write(w, true)
	if err != nil {
		_ = w.Close()
		return sendError("data", err)
	}
	if err := w.Close(); err != nil {
		return sendError("data", err)
	}

	c.trace(ctx, "smtp message sent", slog.String("message_id", msg.MessageID()), slog.Int64("bytes", n))
	return nil
}

// Close ends the session with QUIT. A server error reply to QUIT is logged and
// ignored; the session is disconnected afterwards whatever happens.
func (c *Connection) Close() error {
	if !c.Connected() {
		return nil
	}
	client := c.client
	c.client, c.conn = nil, nil

	err := client.Quit()
	if err == nil {
		return nil
	}
	_ = client.Close()

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		c.logger.Warn("smtp quit failed", slog.Int("code", smtpErr.Code), logger.Error(err))
		return nil
	}
	return connectionError("quit", err)
}

// trace logs protocol steps; MAIL_DEBUG raises them from debug to info.
func (c *Connection) trace(ctx context.Context, msg string, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if c.cfg.debug {
		level = slog.LevelInfo
	}
	c.logger.LogAttrs(ctx, level, msg, attrs...)
}

func connectionError(op string, err error) error {
	return errors.Join(ErrConnection, fmt.Errorf("%w: %s", classify(err), op), err)
}

// sendError keeps protocol rejections distinct from transport failures.
func sendError(op string, err error) error {
	return errors.Join(ErrConnection, ErrSendFailed, fmt.Errorf("%w: %s", classify(err), op), err)
}

func classify(err error) error {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch smtpErr.Code {
		case 530, 534, 535, 538:
			return ErrAuthentication
		}
		return ErrProtocol
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return ErrTimeout
	}
	return ErrConnect
}

func localName() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// SMTPTransport opens a Connection per session.
type SMTPTransport struct {
	Settings *Settings
	Logger   *slog.Logger
	Tokens   oauth2.TokenSource
}

// Open connects to the configured server.
func (t *SMTPTransport) Open(ctx context.Context) (Session, error) {
	opts := []ConnectOption{ConnLogger(t.Logger)}
	if t.Tokens != nil {
		opts = append(opts, ConnTokenSource(t.Tokens))
	}
	conn, err := Connect(ctx, t.Settings, opts...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
