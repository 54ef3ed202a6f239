// Package market fetches the campaign listing from the AdEx market.
package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brandon/adex-market-monitor/internal/metrics"
	"github.com/brandon/adex-market-monitor/internal/models"
	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of a non-200 body ends up in an error message.
const maxErrorBody = 512

// NetworkError reports a failed transfer of the market listing.
type NetworkError struct {
	URL        string
	StatusCode int // Zero when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("market %s returned status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("market %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Fetcher is the source of channel listings used by the session.
type Fetcher interface {
	FetchChannels(ctx context.Context) ([]models.Channel, error)
}

// Client implements Fetcher over HTTP
type Client struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new market client
func NewClient(url string, timeout time.Duration, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchChannels performs one GET of the listing and decodes it. Transport
// failures and non-200 answers return *NetworkError; malformed documents
// return *models.DecodeError.
func (c *Client) FetchChannels(ctx context.Context) ([]models.Channel, error) {
	start := time.Now()
	defer func() {
		metrics.MarketFetchDuration.Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &NetworkError{URL: c.url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &NetworkError{
			URL:        c.url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %q", body),
		}
	}

	channels, err := models.DecodeChannels(resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"url":      c.url,
		"channels": len(channels),
		"elapsed":  time.Since(start).String(),
	}).Debug("Market listing fetched")
	return channels, nil
}
