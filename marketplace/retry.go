package marketplace

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// doWithRetry issues the request, retrying only on HTTP 429. The delay
// doubles each attempt unless the server supplied a Retry-After, which wins.
// Any other status is returned to the caller on the first attempt.
func (c *Client) doWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	delay := c.baseDelay

	var resp *http.Response
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err = c.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		if attempt == c.maxRetries-1 {
			break
		}

		wait := delay
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				wait = time.Duration(secs) * time.Second
			}
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		log.Printf("Rate limited by %s, retrying in %s (attempt %d/%d)", c.cfg.ID, wait, attempt+1, c.maxRetries)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}

	// budget exhausted, hand the last 429 back
	return resp, nil
}
