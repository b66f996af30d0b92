package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
	"github.com/V4T54L/ratatouille-sync/internal/domain"
)

const (
	searchFieldMask = "places.id,places.displayName"

	endpointSearch  = "search"
	endpointDetails = "details"
)

var detailFields = []string{
	"id",
	"displayName",
	"formattedAddress",
	"location",
	"googleMapsUri",
	"types",
	"primaryType",
	"websiteUri",
	"regularOpeningHours",
	"businessStatus",
	"editorialSummary",
	"rating",
	"servesVegetarianFood",
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	Language   string
	RegionHint string
	RPS        float64
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Places API (New). It resolves names to place ids and
// fetches place details, converting them into ExternalRecords.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	regionHint string
	http       *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.SyncMetrics
	logger     *slog.Logger
}

// NewClient creates a Places client.
func NewClient(opts Options, m *metrics.SyncMetrics, logger *slog.Logger) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		language:   opts.Language,
		regionHint: opts.RegionHint,
		http:       hc,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		metrics:    m,
		logger:     logger.With("component", "places"),
	}
}

// Fetch implements domain.PlaceFetcher. A record without a google_id is
// first resolved through a text search on its name.
func (c *Client) Fetch(ctx context.Context, rec domain.ExternalRecord) (domain.ExternalRecord, error) {
	id := rec.GoogleID
	if id == "" {
		var err error
		if id, err = c.SearchID(ctx, rec.GoogleName); err != nil {
			return domain.ExternalRecord{}, err
		}
	}

	p, err := c.details(ctx, id)
	if err != nil {
		return domain.ExternalRecord{}, err
	}
	out := p.toRecord()
	out.GoogleName = rec.GoogleName
	if out.GoogleName == "" {
		out.GoogleName = out.DisplayName
	}
	return out, nil
}

// SearchID returns the id of the best text-search match for name.
func (c *Client) SearchID(ctx context.Context, name string) (string, error) {
	query := name
	if c.regionHint != "" {
		query = name + " in " + c.regionHint
	}
	body, err := json.Marshal(map[string]string{"textQuery": query})
	if err != nil {
		return "", err
	}

	var resp searchResponse
	if err := c.do(ctx, endpointSearch, http.MethodPost, c.baseURL+"/v1/places:searchText", searchFieldMask, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Places) == 0 || resp.Places[0].ID == "" {
		c.logger.Warn("no place matched name", "google_name", name)
		return "", fmt.Errorf("%w: %q", domain.ErrPlaceNotFound, name)
	}
	return resp.Places[0].ID, nil
}

func (c *Client) details(ctx context.Context, id string) (*place, error) {
	var p place
	endpoint := c.baseURL + "/v1/places/" + url.PathEscape(id)
	if err := c.do(ctx, endpointDetails, http.MethodGet, endpoint, strings.Join(detailFields, ","), nil, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = id
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, endpoint, method, target, fieldMask string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", fieldMask)
	if c.language != "" {
		req.Header.Set("Accept-Language", c.language)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.PlacesRequest(endpoint, "error")
		return fmt.Errorf("places %s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.metrics.PlacesRequest(endpoint, "not_found")
		return fmt.Errorf("%w: %s", domain.ErrPlaceNotFound, target)
	case resp.StatusCode != http.StatusOK:
		c.metrics.PlacesRequest(endpoint, "error")
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.PlacesRequest(endpoint, "error")
		return fmt.Errorf("failed to decode places %s response: %w", endpoint, err)
	}
	c.metrics.PlacesRequest(endpoint, "ok")
	return nil
}

// StatusError is a non-2xx answer from the Places API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("places api returned %d: %s", e.Code, e.Body)
}

