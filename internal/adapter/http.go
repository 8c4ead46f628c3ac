package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/amishk599/jobcatalog/internal/model"
)

// maxPayloadBytes caps a single response body.
const maxPayloadBytes = 32 << 20

// doRequest sends req and reads the body. The payload is returned even when an
// error is, so partial responses can still be persisted.
func doRequest(client *http.Client, req *http.Request, source string) (model.SourcePage, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return model.SourcePage{}, err
		}
		return model.SourcePage{}, &model.TransientSourceError{Source: source, Err: err}
	}
	defer resp.Body.Close()

	page := model.SourcePage{StatusCode: resp.StatusCode}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	page.Payload = body

	if resp.StatusCode != http.StatusOK {
		return page, &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("%s fetch: unexpected status %d", source, resp.StatusCode),
		}
	}
	if readErr != nil {
		return page, &model.TransientSourceError{
			Source: source,
			Err:    fmt.Errorf("read body after %d bytes: %w", len(body), readErr),
		}
	}
	return page, nil
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func malformed(item []byte, format string, args ...any) error {
	return &model.MalformedDataError{Payload: item, Err: fmt.Errorf(format, args...)}
}
