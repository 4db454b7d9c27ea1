package mailing

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/emersion/go-message/mail"
	"github.com/spf13/viper"
)

// Settings holds the SMTP connection configuration.
// Embed this in your app config for env parsing with caarlos0/env,
// or read it from the application config with SettingsFromViper.
type Settings struct {
	Username string `env:"MAIL_USERNAME"`
	Password string `env:"MAIL_PASSWORD"`
	Server   string `env:"MAIL_SERVER"`

	// From is the sender address. Falls back to DefaultSender, then Username.
	From          string `env:"MAIL_FROM" validate:"required,email"`
	DefaultSender string `env:"MAIL_DEFAULT_SENDER"`
	FromName      string `env:"MAIL_FROM_NAME"`

	// TemplateFolder is the directory named templates are loaded from. When
	// empty, the application must provide a TemplateEngine.
	TemplateFolder string `env:"MAIL_TEMPLATE_FOLDER"`

	Port  int `env:"MAIL_PORT" envDefault:"465" validate:"min=1,max=65535"`
	Debug int `env:"MAIL_DEBUG" envDefault:"0" validate:"min=0,max=1"`

	UseTLS         bool `env:"MAIL_USE_TLS" envDefault:"false"` // STARTTLS after connecting
	UseSSL         bool `env:"MAIL_USE_SSL" envDefault:"true"`  // TLS from the first byte
	SuppressSend   bool `env:"SUPPRESS_SEND" envDefault:"false"`
	UseCredentials bool `env:"USE_CREDENTIALS" envDefault:"true"`
	ValidateCerts  bool `env:"VALIDATE_CERTS" envDefault:"true"`
}

// DefaultSettings returns settings with every optional key at its default.
func DefaultSettings() Settings {
	return Settings{
		Port:           465,
		UseSSL:         true,
		UseCredentials: true,
		ValidateCerts:  true,
	}
}

// LoadSettings reads settings from the process environment and validates them.
func LoadSettings() (*Settings, error) {
	s, err := env.ParseAs[Settings]()
	if err != nil {
		return nil, errors.Join(ErrConfiguration, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SettingsFromViper reads settings from the application config and validates them.
// Keys are the MAIL_* names; missing optional keys take their defaults.
func SettingsFromViper(v *viper.Viper) (*Settings, error) {
	if v == nil {
		return nil, errors.Join(ErrConfiguration, errors.New("nil config"))
	}

	s := DefaultSettings()
	s.Username = v.GetString("MAIL_USERNAME")
	s.Password = v.GetString("MAIL_PASSWORD")
	s.Server = v.GetString("MAIL_SERVER")
	s.From = v.GetString("MAIL_FROM")
	s.DefaultSender = v.GetString("MAIL_DEFAULT_SENDER")
	s.FromName = v.GetString("MAIL_FROM_NAME")
	s.TemplateFolder = v.GetString("MAIL_TEMPLATE_FOLDER")

	if v.IsSet("MAIL_PORT") {
		s.Port = v.GetInt("MAIL_PORT")
	}
	if v.IsSet("MAIL_DEBUG") {
		s.Debug = v.GetInt("MAIL_DEBUG")
	}
	if v.IsSet("MAIL_USE_TLS") {
		s.UseTLS = v.GetBool("MAIL_USE_TLS")
	}
	if v.IsSet("MAIL_USE_SSL") {
		s.UseSSL = v.GetBool("MAIL_USE_SSL")
	}
	if v.IsSet("SUPPRESS_SEND") {
		s.SuppressSend = v.GetBool("SUPPRESS_SEND")
	}
	if v.IsSet("USE_CREDENTIALS") {
		s.UseCredentials = v.GetBool("USE_CREDENTIALS")
	}
	if v.IsSet("VALIDATE_CERTS") {
		s.ValidateCerts = v.GetBool("VALIDATE_CERTS")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required keys, value ranges and the template folder.
// It resolves the sender fallback chain and stores the template folder as an absolute path.
func (s *Settings) Validate() error {
	var missing []string
	if s.Username == "" {
		missing = append(missing, "MAIL_USERNAME")
	}
	if s.Password == "" {
		missing = append(missing, "MAIL_PASSWORD")
	}
	if s.Server == "" {
		missing = append(missing, "MAIL_SERVER")
	}
	if len(missing) > 0 {
		return errors.Join(ErrConfiguration, fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", ")))
	}

	if s.From == "" {
		s.From = s.DefaultSender
	}
	if s.From == "" {
		s.From = s.Username
	}

	if err := validate.Struct(s); err != nil {
		return errors.Join(ErrConfiguration, err)
	}

	if s.TemplateFolder != "" {
		folder, err := resolveTemplateFolder(s.TemplateFolder)
		if err != nil {
			return err
		}
		s.TemplateFolder = folder
	}
	return nil
}

// Sender returns the From header value: "Name <address>" or the bare address.
func (s *Settings) Sender() string {
	return FormatAddress(s.FromName, s.From)
}

// Addr returns the host:port the SMTP client dials.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Server, strconv.Itoa(s.Port))
}

// FormatAddress formats a display name and address into "Name <address>".
// Returns the bare address if name is empty. Names with specials are quoted,
// non-ASCII names are RFC 2047 encoded.
func FormatAddress(name, address string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return address
	}
	if isAtomPhrase(name) {
		return name + " <" + address + ">"
	}
	return (&mail.Address{Name: name, Address: address}).String()
}

// isAtomPhrase reports whether s is a sequence of RFC 5322 atoms that can be
// written without quoting.
func isAtomPhrase(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
		case strings.ContainsRune("!#$%&'*+-/=?^_`{|}~", r):
		default:
			return false
		}
	}
	return true
}

func resolveTemplateFolder(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", errors.Join(ErrConfiguration, fmt.Errorf("%w: %q does not exist", ErrTemplateFolder, dir), err)
	}
	if !info.IsDir() {
		return "", errors.Join(ErrConfiguration, fmt.Errorf("%w: %q is not a directory", ErrTemplateFolder, dir))
	}

	f, err := os.Open(dir)
	if err != nil {
		return "", errors.Join(ErrConfiguration, fmt.Errorf("%w: %q is not readable", ErrTemplateFolder, dir), err)
	}
	_ = f.Close()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Join(ErrConfiguration, fmt.Errorf("%w: %q path validation failed", ErrTemplateFolder, dir), err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Join(ErrConfiguration, fmt.Errorf("%w: %q path validation failed", ErrTemplateFolder, dir), err)
	}
	return resolved, nil
}
