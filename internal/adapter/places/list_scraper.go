package places

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/V4T54L/ratatouille-sync/internal/adapter/metrics"
)

const (
	DefaultMapsURL = "https://google.com"

	endpointList = "list"
	maxListBody  = 16 << 20
)

var (
	// ErrUnexpectedListFormat means the list page no longer has the layout
	// the scraper understands.
	ErrUnexpectedListFormat = errors.New("unexpected maps list format")

	listNameRe = regexp.MustCompile(`(?:\\"/g/[^\\"]+\\"\]|\]\]),\\"(.*?)\\",\\"`)
)

// ListScraper reads the restaurant names saved in a shared Google Maps list.
type ListScraper struct {
	baseURL string
	listID  string
	http    *http.Client
	metrics *metrics.SyncMetrics
	logger  *slog.Logger
}

// NewListScraper creates a scraper for listID. An empty baseURL means
// DefaultMapsURL.
func NewListScraper(baseURL, listID string, hc *http.Client, m *metrics.SyncMetrics, logger *slog.Logger) *ListScraper {
	if baseURL == "" {
		baseURL = DefaultMapsURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &ListScraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		listID:  listID,
		http:    hc,
		metrics: m,
		logger:  logger.With("component", "list_scraper"),
	}
}

// Names fetches the list page and returns the names in list order.
func (s *ListScraper) Names(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/maps/@/data="+s.listID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		s.metrics.PlacesRequest(endpointList, "error")
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.metrics.PlacesRequest(endpointList, "error")
		return nil, &StatusError{Code: resp.StatusCode}
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxListBody))
	if err != nil {
		s.metrics.PlacesRequest(endpointList, "error")
		return nil, fmt.Errorf("failed to read list body: %w", err)
	}

	names, err := ExtractListNames(string(raw))
	if err != nil {
		s.metrics.PlacesRequest(endpointList, "error")
		return nil, err
	}
	s.metrics.PlacesRequest(endpointList, "ok")
	s.logger.Info("list scraped", "names", len(names))
	return names, nil
}

// ExtractListNames pulls the place names out of a raw list page.
func ExtractListNames(raw string) ([]string, error) {
	// The payload is the third block after the XSSI guard.
	parts := strings.Split(raw, `)]}'\n`)
	if len(parts) < 3 {
		return nil, fmt.Errorf("%w: %d guard blocks", ErrUnexpectedListFormat, len(parts)-1)
	}
	section, _, _ := strings.Cut(parts[2], `]]"],`)
	text := html.UnescapeString(section + "]]")

	var names []string
	for _, m := range listNameRe.FindAllStringSubmatch(text, -1) {
		if name := strings.TrimSpace(m[1]); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
