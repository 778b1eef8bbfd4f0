// Package aviationweather implements upstream sources backed by the public
// aviation weather services: the aviationweather.gov data API (primary) and
// the NOAA tgftp station files (backup).
package aviationweather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/wx"
)

const (
	// SourceName identifies the data API source.
	SourceName = "aviationweather"

	// DefaultBaseURL is the aviationweather.gov data API base URL.
	DefaultBaseURL = "https://aviationweather.gov/api/data"

	userAgent = "skybrief/1.0"
)

var productPaths = map[wx.ProductKind]string{
	wx.KindObservation: "metar",
	wx.KindForecast:    "taf",
}

// ClientConfig holds configuration for the data API client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to aviationweather.gov).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilient client; retries are the
	// aggregator's job.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches raw METAR and TAF text from the aviationweather.gov data API.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new data API client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{Name: SourceName})
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the source name.
func (c *Client) Name() string {
	return SourceName
}

// FetchRaw fetches the latest raw report of kind for station.
func (c *Client) FetchRaw(ctx context.Context, station string, kind wx.ProductKind) (wx.RawReport, error) {
	path, ok := productPaths[kind]
	if !ok {
		return wx.RawReport{}, resilience.Permanent(fmt.Errorf("%w: %s", wx.ErrUnsupportedProduct, kind))
	}

	q := url.Values{}
	q.Set("ids", station)
	q.Set("format", "raw")
	if kind == wx.KindForecast {
		q.Set("sep", "true")
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return wx.RawReport{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return wx.RawReport{}, fmt.Errorf("executing request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return wx.RawReport{}, fmt.Errorf("%w: %s has no %s", wx.ErrStationNotFound, station, kind)
	case resp.StatusCode != http.StatusOK:
		return wx.RawReport{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	text := firstReport(string(resp.Body))
	if text == "" {
		return wx.RawReport{}, fmt.Errorf("%w: %s has no %s", wx.ErrStationNotFound, station, kind)
	}

	c.logger.Debug().Str("station", station).Str("product", string(kind)).Msg("fetched raw report")

	return wx.RawReport{
		Kind:       kind,
		StationID:  station,
		RawText:    text,
		ReceivedAt: responseTime(resp),
	}, nil
}

// firstReport returns the first report of a raw response. Reports are
// separated by blank lines; a report may wrap over several lines.
func firstReport(body string) string {
	body = strings.ReplaceAll(strings.TrimSpace(body), "\r\n", "\n")
	if body == "" {
		return ""
	}
	report, _, _ := strings.Cut(body, "\n\n")
	lines := strings.Split(report, "\n")
	if len(lines) > 1 && !strings.HasPrefix(lines[0], "TAF") {
		// METAR responses list one report per line.
		return strings.TrimSpace(lines[0])
	}
	return strings.Join(strings.Fields(report), " ")
}

func responseTime(resp *resilience.Response) time.Time {
	if resp.Header == nil {
		return time.Time{}
	}
	t, err := http.ParseTime(resp.Header.Get("Date"))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
