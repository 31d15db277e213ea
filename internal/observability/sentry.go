package observability

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry is a no-op without a DSN, so local development needs no Sentry
// account. Cancelled-request errors are dropped before sending; clients
// closing connections mid-redirect is routine, not actionable.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          os.Getenv("SENTRY_RELEASE"),
		ServerName:       "linklite",
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && errors.Is(hint.OriginalException, context.Canceled) {
				return nil
			}
			return event
		},
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
