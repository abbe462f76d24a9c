// Package chronicle scrapes the public chronicle of anti-refugee incidents,
// one year at a time, into per-year raw files.
package chronicle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/couchcryptid/arvig-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/arvig-etl/internal/domain"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const (
	userAgent = "arvig-etl"

	fetchAttempts = 3
	maxRetryDelay = 5 * time.Second
)

var (
	// ErrYearUnavailable is returned for years the chronicle does not publish.
	ErrYearUnavailable = errors.New("year not available in chronicle")
	// ErrDisallowed is returned when robots.txt forbids the listing path.
	ErrDisallowed = errors.New("chronicle disallowed by robots.txt")
)

// Client reads chronicle listing pages.
type Client struct {
	baseURL    string
	firstYear  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retryDelay time.Duration
	logger     *slog.Logger

	robotsOnce sync.Once
	robots     *robotstxt.RobotsData
}

// NewClient creates a scraper that issues at most one request per interval.
func NewClient(baseURL string, firstYear int, interval, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		firstYear:  firstYear,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		retryDelay: 500 * time.Millisecond,
		logger:     logger,
	}
}

// ReadYear fetches every listing page of year.
func (c *Client) ReadYear(ctx context.Context, year int) ([]domain.RawRecord, error) {
	if current := domain.Now().Year(); year < c.firstYear || year > current {
		return nil, fmt.Errorf("%w: %d (published from %d to %d)", ErrYearUnavailable, year, c.firstYear, current)
	}

	first, err := c.fetch(ctx, year, 0)
	if err != nil {
		return nil, err
	}
	last, err := lastPage(bytes.NewReader(first))
	if err != nil {
		return nil, fmt.Errorf("parse pager of %d: %w", year, err)
	}
	c.logger.Info("reading chronicle year", "year", year, "pages", last+1)

	var out []domain.RawRecord
	for nr := 0; nr <= last; nr++ {
		body := first
		if nr > 0 {
			if body, err = c.fetch(ctx, year, nr); err != nil {
				return nil, err
			}
		}
		p, err := parsePage(bytes.NewReader(body), year, nr)
		if err != nil {
			return nil, fmt.Errorf("parse page %d of %d: %w", nr, year, err)
		}
		if !p.aligned {
			c.logger.Warn("chronicle fields of unequal length, parsed per entry", "year", year, "page", nr)
		}
		out = append(out, p.records...)
	}
	return out, nil
}

// SaveYears writes attacks_YYYY.csv for every year in [from, to] to dir,
// skipping years whose file already exists so an interrupted run resumes.
func (c *Client) SaveYears(ctx context.Context, dir string, from, to int) error {
	for year := from; year <= to; year++ {
		if csvfile.YearExists(dir, year) {
			c.logger.Info("raw year already present, skipping", "year", year)
			continue
		}
		records, err := c.ReadYear(ctx, year)
		if err != nil {
			return err
		}
		if err := csvfile.WriteYear(dir, year, records); err != nil {
			return err
		}
		c.logger.Info("raw year saved", "year", year, "records", len(records))
	}
	return nil
}

func (c *Client) pageURL(year, nr int) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse chronicle URL: %w", err)
	}
	q := u.Query()
	q.Set("field_date_value[value][year]", strconv.Itoa(year))
	q.Set("page", strconv.Itoa(nr))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) fetch(ctx context.Context, year, nr int) ([]byte, error) {
	u, err := c.pageURL(year, nr)
	if err != nil {
		return nil, err
	}
	if !c.allowed(ctx, u) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowed, u)
	}

	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, status, err := c.get(ctx, u)
		if err == nil && status == http.StatusOK {
			return body, nil
		}
		again := retryable(ctx, status, err)
		if err == nil {
			err = fmt.Errorf("status %d", status)
		}
		err = fmt.Errorf("fetch page %d of %d: %w", nr, year, err)
		if attempt == fetchAttempts || !again {
			return nil, err
		}
		c.logger.Warn("chronicle fetch failed, retrying", "year", year, "page", nr, "attempt", attempt, "delay", delay, "error", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// retryable reports whether a failed request may succeed when repeated.
// Client errors other than 429 are final.
func retryable(ctx context.Context, status int, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return err != nil || status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) get(ctx context.Context, u string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// allowed consults the host's robots.txt, fetched once. An unreachable
// robots.txt allows everything.
func (c *Client) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	c.robotsOnce.Do(func() {
		robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
		body, status, err := c.get(ctx, robotsURL)
		if err != nil {
			c.logger.Warn("robots.txt unavailable", "url", robotsURL, "error", err)
			return
		}
		data, err := robotstxt.FromStatusAndBytes(status, body)
		if err != nil {
			c.logger.Warn("robots.txt unparsable", "url", robotsURL, "error", err)
			return
		}
		c.robots = data
	})
	if c.robots == nil {
		return true
	}
	return c.robots.TestAgent(u.Path, userAgent)
}
