package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"log/slog"

	"anilink/internal/logging"
	"anilink/internal/resolve/tmdb"
)

// maxRetryDelay caps the exponential backoff between API attempts.
const maxRetryDelay = 30 * time.Second

func (r *Resolver) searchWithRetry(ctx context.Context, logger *slog.Logger, query string, opts tmdb.SearchOptions) (*tmdb.Response, error) {
	var response *tmdb.Response
	err := r.withRetry(ctx, logger, "tmdb search", func(ctx context.Context) error {
		var err error
		response, err = r.searcher.SearchTV(ctx, query, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

func (r *Resolver) showDetailsWithRetry(ctx context.Context, logger *slog.Logger, showID int64) (*tmdb.ShowDetails, error) {
	var details *tmdb.ShowDetails
	err := r.withRetry(ctx, logger, "tmdb show details", func(ctx context.Context) error {
		var err error
		details, err = r.searcher.GetTVDetails(ctx, showID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

func (r *Resolver) seasonDetailsWithRetry(ctx context.Context, logger *slog.Logger, showID int64, season int) (*tmdb.SeasonDetails, error) {
	var details *tmdb.SeasonDetails
	err := r.withRetry(ctx, logger, "tmdb season details", func(ctx context.Context) error {
		var err error
		details, err = r.searcher.GetSeasonDetails(ctx, showID, season)
		return err
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// withRetry runs fn up to the configured attempt count, backing off between
// attempts on errors classified as transient. Non-transient errors return
// immediately.
func (r *Resolver) withRetry(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	attempts := r.cfg.TMDB.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		delay, retry := r.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return err
		}
		logger.Warn(
			"transient metadata failure; retrying",
			logging.String("operation", op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (r *Resolver) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts {
		return 0, false
	}
	if err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *tmdb.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Transient() {
			return r.backoffDelay(attempt), true
		}
		return 0, false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return r.backoffDelay(attempt), true
	}

	// Context errors were excluded above, so a url.Error here is a genuine
	// network failure worth another attempt.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return r.backoffDelay(attempt), true
	}

	return 0, false
}

// backoffDelay doubles the configured base delay per attempt: attempt 1 waits
// the base, attempt 2 twice that, and so on up to maxRetryDelay.
func (r *Resolver) backoffDelay(attempt int) time.Duration {
	base := time.Duration(r.cfg.TMDB.RetryDelaySeconds) * time.Second
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxRetryDelay/2 {
			return maxRetryDelay
		}
		delay *= 2
	}
	return delay
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
