package aviationweather

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/wx"
)

const (
	// BackupSourceName identifies the NOAA station file source.
	BackupSourceName = "tgftp"

	// DefaultTGFTPURL is the NOAA station file server.
	DefaultTGFTPURL = "https://tgftp.nws.noaa.gov/data"

	stampLayout = "2006/01/02 15:04"
)

var stationFileDirs = map[wx.ProductKind]string{
	wx.KindObservation: "observations/metar/stations",
	wx.KindForecast:    "forecasts/taf/stations",
}

// StationFileConfig holds configuration for the station file client.
type StationFileConfig struct {
	// BaseURL is the file server base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// StationFileClient reads the per-station text files NOAA publishes. Each
// file starts with a "YYYY/MM/DD HH:MM" line followed by the report.
type StationFileClient struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewStationFileClient creates a new station file client.
func NewStationFileClient(cfg StationFileConfig) *StationFileClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultTGFTPURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{Name: BackupSourceName})
	}

	return &StationFileClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the source name.
func (c *StationFileClient) Name() string {
	return BackupSourceName
}

// FetchRaw fetches the station file for kind and strips its timestamp line.
func (c *StationFileClient) FetchRaw(ctx context.Context, station string, kind wx.ProductKind) (wx.RawReport, error) {
	dir, ok := stationFileDirs[kind]
	if !ok {
		return wx.RawReport{}, resilience.Permanent(fmt.Errorf("%w: %s", wx.ErrUnsupportedProduct, kind))
	}
	endpoint := fmt.Sprintf("%s/%s/%s.TXT", c.baseURL, dir, station)

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
	case resp.StatusCode == http.StatusNotFound:
		return wx.RawReport{}, fmt.Errorf("%w: no %s file for %s", wx.ErrStationNotFound, kind, station)
	case resp.StatusCode != http.StatusOK:
		return wx.RawReport{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	stamp, text, err := parseStationFile(string(resp.Body))
	if err != nil {
		return wx.RawReport{}, resilience.Permanent(err)
	}
	if kind == wx.KindObservation && !strings.HasPrefix(text, "METAR") && !strings.HasPrefix(text, "SPECI") {
		text = "METAR " + text
	}

	c.logger.Debug().Str("station", station).Str("product", string(kind)).Time("stamp", stamp).Msg("fetched station file")

	return wx.RawReport{
		Kind:       kind,
		StationID:  station,
		RawText:    text,
		ReceivedAt: stamp,
	}, nil
}

func parseStationFile(body string) (time.Time, string, error) {
	body = strings.ReplaceAll(strings.TrimSpace(body), "\r\n", "\n")
	first, rest, ok := strings.Cut(body, "\n")
	if !ok {
		return time.Time{}, "", fmt.Errorf("%w: station file has no report", wx.ErrGrammarMismatch)
	}
	stamp, err := time.Parse(stampLayout, strings.TrimSpace(first))
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: station file timestamp %q", wx.ErrGrammarMismatch, first)
	}
	text := strings.Join(strings.Fields(rest), " ")
	if text == "" {
		return time.Time{}, "", fmt.Errorf("%w: station file has no report", wx.ErrGrammarMismatch)
	}
	return stamp, text, nil
}
