package reliability

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/enginemux/enginemux-go/contracts"
)

var retryAfterPattern = regexp.MustCompile(`retry after (\d+)`)

// RetryAfter reports whether env is a rate-limit response and, if so, the
// backoff the engine mandated. A 429 whose message does not carry a
// recognizable "retry after N" interval is not treated as rate limiting and
// must be returned to the caller as-is.
func RetryAfter(env *contracts.Envelope) (time.Duration, bool) {
	code, ok := env.ErrorCode()
	if !ok || code != contracts.CodeTooManyRequests {
		return 0, false
	}

	matches := retryAfterPattern.FindStringSubmatch(env.ErrorMessage())
	if matches == nil {
		return 0, false
	}

	seconds, err := strconv.ParseUint(matches[1], 10, 32)
	if err != nil {
		return 0, false
	}

	return time.Duration(seconds) * time.Second, true
}

// Wait sleeps for delay or until the context ends, whichever comes first.
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
