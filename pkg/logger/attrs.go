package logger

import "log/slog"

// Error returns an "error" attribute; a nil error yields an empty attribute that slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// Recipients returns a "recipients" attribute holding the number of addresses.
// Addresses themselves are not logged.
func Recipients(addrs []string) slog.Attr {
	return slog.Int("recipients", len(addrs))
}
