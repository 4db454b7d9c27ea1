// Command example sends a welcome email rendered from a markdown template.
//
//	MAIL_USERNAME=user MAIL_PASSWORD=secret MAIL_SERVER=localhost MAIL_PORT=1025 \
//	MAIL_USE_SSL=false MAIL_FROM=noreply@example.com \
//	go run ./example -to someone@example.com -name Alice
package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/mailing"
	"github.com/dmitrymomot/mailing/pkg/checker"
	"github.com/dmitrymomot/mailing/pkg/health"
	"github.com/dmitrymomot/mailing/pkg/logger"
	"github.com/dmitrymomot/mailing/pkg/markdown"
	mailredis "github.com/dmitrymomot/mailing/pkg/redis"
	"github.com/dmitrymomot/mailing/pkg/security"
)

//go:embed templates
var templates embed.FS

type config struct {
	Mail     mailing.Settings
	Markdown markdown.Config
	Limits   security.Limits
	Checker  checker.Config
	RedisURL string `env:"MAIL_REDIS_URL"`
}

func main() {
	to := flag.String("to", "", "recipient address")
	name := flag.String("name", "there", "recipient name")
	flag.Parse()

	log := logger.New(logger.MailExtractor())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, *to, *name); err != nil {
		log.Error("example failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, to, name string) error {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		return err
	}
	if err := cfg.Mail.Validate(); err != nil {
		return err
	}

	checks := health.Checks{"smtp": health.SMTP(&cfg.Mail, mailing.ConnLogger(log))}

	var limiter security.RateLimiter = security.NewMemoryRateLimiter(cfg.Limits)
	var store checker.Store = checker.NewMemoryStore()
	if cfg.RedisURL != "" {
		client, err := mailredis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func(c redis.UniversalClient) { _ = c.Close() }(client)

		limiter = security.NewRedisRateLimiter(client, cfg.Limits, "")
		store = checker.NewRedisStore(client, "")
		checks["redis"] = health.Redis(client)
	}

	c := checker.New(cfg.Checker, checker.WithStore(store), checker.WithLogger(log))
	if err := c.SeedTempDomains(ctx); err != nil {
		return err
	}

	report, err := c.Check(ctx, to)
	if err != nil {
		return err
	}
	if !report.Deliverable() {
		log.Warn("recipient is not deliverable", slog.Any("report", report))
		return nil
	}

	if err := health.Err(ctx, checks, health.WithLogger(log)); err != nil {
		return err
	}

	tfs, err := fs.Sub(templates, "templates")
	if err != nil {
		return err
	}

	m, err := mailing.New(&cfg.Mail,
		mailing.WithLogger(log),
		mailing.WithTemplateEngine(markdown.New(tfs, cfg.Markdown)),
		mailing.WithTransport(security.LimitTransport(
			&mailing.SMTPTransport{Settings: &cfg.Mail, Logger: log},
			limiter,
			security.BySender,
		)),
	)
	if err != nil {
		return err
	}

	msg, err := mailing.NewMessage(mailing.MessageParams{
		Subject:      "Welcome",
		Recipients:   []string{to},
		TemplateBody: map[string]any{"name": name},
	})
	if err != nil {
		return err
	}

	return m.SendMessage(ctx, msg, mailing.WithTemplate("welcome.md"))
}
