package resend

// Config holds Resend API configuration.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	APIKey string `env:"RESEND_API_KEY"`
	// Tags are attached to every email, e.g. {"category": "transactional"}.
	Tags map[string]string `env:"RESEND_TAGS"`
}
