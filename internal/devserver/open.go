package devserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const openMaxTries = 10

// open waits until target answers and then opens it in the browser.
func (s *Server) open(ctx context.Context, target string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	operation := func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		_ = resp.Body.Close()
		return struct{}{}, nil
	}

	if _, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(openMaxTries)); err != nil {
		return fmt.Errorf("dev server did not answer at %s: %w", target, err)
	}

	log.Info().Str("url", target).Msg("Opening browser")
	return s.opts.OpenURL(target)
}
