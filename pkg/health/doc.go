// Package health probes the dependencies a mail sender relies on: the SMTP
// server, Redis and the sender domain's MX records.
//
//	checks := health.Checks{
//	    "smtp":   health.SMTP(settings),
//	    "redis":  health.Redis(client),
//	    "sender": health.SenderDomain(c, settings),
//	}
//	if err := health.Err(ctx, checks); err != nil {
//	    log.Fatal(err)
//	}
//
// Handler exposes the same report over HTTP for readiness probes.
package health
