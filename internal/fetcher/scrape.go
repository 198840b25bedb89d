package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const scrapePath = "/scrape"

// ScrapeOptions parameterise the scrape-service client.
type ScrapeOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Source    string
}

// ScrapeClient fetches quotes from the headless scrape service that renders
// vendor pages. Retry and backoff live on the service side.
type ScrapeClient struct {
	opts    ScrapeOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewScrapeClient constructs a quote fetcher backed by the scrape service.
func NewScrapeClient(opts ScrapeOptions, logger zerolog.Logger) *ScrapeClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &ScrapeClient{
		opts:    opts,
		logger:  logger.With().Str("component", "scrape_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchQuotes renders the event page via the scrape service and returns its
// ticket quotes. Malformed entries are skipped and logged; the remainder of
// the batch is still returned.
func (c *ScrapeClient) FetchQuotes(ctx context.Context, eventURL string) ([]RawQuote, error) {
	if c.baseURL == "" {
		return nil, errors.New("scraper base_url not configured")
	}
	if eventURL == "" {
		return nil, errors.New("event url required")
	}

	endpoint := c.baseURL + scrapePath + "?url=" + url.QueryEscape(eventURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payload)
	}

	var body scrapeResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}

	observedAt := time.Now().UTC()
	quotes := make([]RawQuote, 0, len(body.Tickets))
	for _, ticket := range body.Tickets {
		quote, ok := c.normalizeTicket(ticket, observedAt, eventURL)
		if !ok {
			continue
		}
		quotes = append(quotes, quote)
	}

	return quotes, nil
}

func (c *ScrapeClient) normalizeTicket(ticket scrapeTicket, observedAt time.Time, eventURL string) (RawQuote, bool) {
	if strings.TrimSpace(ticket.Section) == "" {
		c.logger.Warn().Str("url", eventURL).Msg("ticket entry missing section; skipped")
		return RawQuote{}, false
	}
	if ticket.Price == nil {
		c.logger.Warn().Str("url", eventURL).Str("section", ticket.Section).Msg("ticket entry missing price; skipped")
		return RawQuote{}, false
	}

	price, err := decimal.NewFromString(string(*ticket.Price))
	if err != nil || price.IsNegative() {
		c.logger.Warn().Str("url", eventURL).Str("section", ticket.Section).Msg("ticket entry has invalid price; skipped")
		return RawQuote{}, false
	}

	source := ticket.Source
	if source == "" {
		source = c.opts.Source
	}

	return RawQuote{
		Section:    strings.TrimSpace(ticket.Section),
		Row:        strings.TrimSpace(ticket.Row),
		Price:      price,
		Available:  ticket.Available,
		Source:     source,
		ObservedAt: observedAt,
	}, true
}

type scrapeResponse struct {
	Tickets []scrapeTicket `json:"tickets"`
}

type scrapeTicket struct {
	Section   string       `json:"section"`
	Row       string       `json:"row"`
	Price     *json.Number `json:"price"`
	Available bool         `json:"available"`
	Source    string       `json:"source"`
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("scrape service error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("scrape service error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("scrape service error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("scrape service error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("scrape service error (%d)", status)
}

var _ QuoteFetcher = (*ScrapeClient)(nil)
