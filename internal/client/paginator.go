package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// pageRetryInterval spaces the single retry a failed page fetch gets.
const pageRetryInterval = 250 * time.Millisecond

// pageLinks is the pagination block of a B3 response envelope. The total
// page count is encoded in the page parameter of the last-page link.
type pageLinks struct {
	Links struct {
		Last string `json:"last"`
	} `json:"links"`
}

// fetchAllPages fetches every page of a B3 request. Page 1 is fetched
// first to discover the total page count; the remaining pages are fetched
// concurrently, capped at maxInFlight, and collected as they complete.
// Page order is not preserved: records carry their own reference dates.
func (c *B3Client) fetchAllPages(ctx context.Context, method, reqPath string, params url.Values) ([]json.RawMessage, error) {
	first, err := c.fetchPage(ctx, method, reqPath, params, 1)
	if err != nil {
		return nil, c.paginatorError(method, reqPath, params, err)
	}

	var links pageLinks
	if err := json.Unmarshal(first, &links); err != nil || links.Links.Last == "" {
		// No pagination metadata: the response is the sole page.
		return []json.RawMessage{first}, nil
	}

	totalPages, err := pagesFromLastLink(links.Links.Last)
	if err != nil {
		return nil, c.paginatorError(method, reqPath, params, err)
	}
	if totalPages <= 1 {
		return []json.RawMessage{first}, nil
	}

	c.logger.Debug("Fanning out page fetches",
		zap.String("path", reqPath),
		zap.Int("total_pages", totalPages))

	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pages := make([]json.RawMessage, totalPages)
	pages[0] = first

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	// The semaphore is acquired before the goroutine is spawned, so the
	// launch loop itself is throttled and a huge claimed page count never
	// allocates more than maxInFlight goroutines at once.
	sem := make(chan struct{}, c.maxInFlight)
	for page := 2; page <= totalPages; page++ {
		sem <- struct{}{}
		if fanCtx.Err() != nil {
			<-sem
			break
		}
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer func() { <-sem }()

			body, err := c.fetchPage(fanCtx, method, reqPath, params, page)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("page %d: %w", page, err)
				}
				cancel()
				return
			}
			pages[page-1] = body
		}(page)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, c.paginatorError(method, reqPath, params, firstErr)
	}
	return pages, nil
}

// fetchPage requests a single page, retrying once on a transport-level
// failure. Semantic failures (token rejection, context cancellation) are
// not retried.
func (c *B3Client) fetchPage(ctx context.Context, method, reqPath string, params url.Values, page int) (json.RawMessage, error) {
	pageParams := url.Values{}
	for k, v := range params {
		pageParams[k] = v
	}
	pageParams.Set("page", strconv.Itoa(page))

	var body json.RawMessage
	operation := func() error {
		var err error
		body, err = c.doRequest(ctx, method, reqPath, pageParams)
		if err == nil {
			return nil
		}
		var reqErr *RequestError
		if errors.As(err, &reqErr) && ctx.Err() == nil {
			c.logger.Warn("Page fetch failed, retrying once",
				zap.String("path", reqPath),
				zap.Int("page", page),
				zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pageRetryInterval), 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *B3Client) paginatorError(method, reqPath string, params url.Values, err error) error {
	return &PaginatorError{Method: method, Path: reqPath, Params: params, Err: err}
}

// pagesFromLastLink extracts the total page count from the last-page link
// of the response envelope.
func pagesFromLastLink(last string) (int, error) {
	if u, err := url.Parse(last); err == nil {
		if page := u.Query().Get("page"); page != "" {
			return strconv.Atoi(page)
		}
	}
	// Fall back to the raw trailing parameter, the way the link is built.
	idx := strings.LastIndex(last, "=")
	if idx < 0 || idx == len(last)-1 {
		return 0, fmt.Errorf("last-page link %q carries no page parameter", last)
	}
	return strconv.Atoi(last[idx+1:])
}
