package aviationweather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybrief/skybrief/internal/provider/resilience"
	"github.com/skybrief/skybrief/internal/source/aviationweather"
	"github.com/skybrief/skybrief/internal/wx"
)

func TestClient_FetchObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metar", r.URL.Path)
		assert.Equal(t, "KDEN", r.URL.Query().Get("ids"))
		assert.Equal(t, "raw", r.URL.Query().Get("format"))
		w.Header().Set("Date", "Tue, 12 Mar 2024 17:55:00 GMT")
		_, _ = w.Write([]byte("METAR KDEN 121753Z 36010KT 10SM FEW080 12/M04 A3012 RMK AO2\nMETAR KDEN 121653Z 35008KT 10SM CLR 11/M04 A3013\n"))
	}))
	defer server.Close()

	client := aviationweather.NewClient(aviationweather.ClientConfig{
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(resilience.DefaultClientConfig("test")),
	})

	raw, err := client.FetchRaw(context.Background(), "KDEN", wx.KindObservation)
	require.NoError(t, err)
	assert.Equal(t, wx.KindObservation, raw.Kind)
	assert.Equal(t, "KDEN", raw.StationID)
	assert.Equal(t, "METAR KDEN 121753Z 36010KT 10SM FEW080 12/M04 A3012 RMK AO2", raw.RawText)
	assert.Equal(t, time.Date(2024, 3, 12, 17, 55, 0, 0, time.UTC), raw.ReceivedAt)
	assert.Equal(t, aviationweather.SourceName, client.Name())
}

func TestClient_FetchForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/taf", r.URL.Path)
		_, _ = w.Write([]byte("TAF KDEN 121720Z 1218/1324 36012KT P6SM SCT080\n      FM130200 33008KT P6SM BKN100\n\nTAF KDEN 121120Z 1212/1318 VRB03KT P6SM SKC\n"))
	}))
	defer server.Close()

	client := aviationweather.NewClient(aviationweather.ClientConfig{BaseURL: server.URL})

	raw, err := client.FetchRaw(context.Background(), "KDEN", wx.KindForecast)
	require.NoError(t, err)
	assert.Equal(t, "TAF KDEN 121720Z 1218/1324 36012KT P6SM SCT080 FM130200 33008KT P6SM BKN100", raw.RawText)
	assert.WithinDuration(t, time.Now(), raw.ReceivedAt, time.Minute, "taken from the Date header")
}

func TestClient_NoData(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no content", http.StatusNoContent, ""},
		{"not found", http.StatusNotFound, ""},
		{"empty body", http.StatusOK, "  \n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := aviationweather.NewClient(aviationweather.ClientConfig{BaseURL: server.URL})
			_, err := client.FetchRaw(context.Background(), "KZZZ", wx.KindObservation)
			assert.ErrorIs(t, err, wx.ErrStationNotFound)
		})
	}
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := aviationweather.NewClient(aviationweather.ClientConfig{BaseURL: server.URL})
	_, err := client.FetchRaw(context.Background(), "KDEN", wx.KindObservation)
	var serverErr *resilience.ServerError
	assert.ErrorAs(t, err, &serverErr)
}

func TestClient_UnsupportedProduct(t *testing.T) {
	client := aviationweather.NewClient(aviationweather.ClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.FetchRaw(context.Background(), "KDEN", wx.KindNotice)
	assert.ErrorIs(t, err, wx.ErrUnsupportedProduct)
	assert.True(t, resilience.IsPermanent(err))
}

func TestStationFileClient_FetchObservation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/observations/metar/stations/KDEN.TXT", r.URL.Path)
		_, _ = w.Write([]byte("2024/03/12 17:53\nKDEN 121753Z 36010KT 10SM FEW080 12/M04 A3012\n"))
	}))
	defer server.Close()

	client := aviationweather.NewStationFileClient(aviationweather.StationFileConfig{BaseURL: server.URL})

	raw, err := client.FetchRaw(context.Background(), "KDEN", wx.KindObservation)
	require.NoError(t, err)
	assert.Equal(t, "METAR KDEN 121753Z 36010KT 10SM FEW080 12/M04 A3012", raw.RawText)
	assert.Equal(t, time.Date(2024, 3, 12, 17, 53, 0, 0, time.UTC), raw.ReceivedAt)
	assert.Equal(t, aviationweather.BackupSourceName, client.Name())
}

func TestStationFileClient_FetchForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecasts/taf/stations/KDEN.TXT", r.URL.Path)
		_, _ = w.Write([]byte("2024/03/12 17:20\nTAF KDEN 121720Z 1218/1324 36012KT P6SM SCT080\n      FM130200 33008KT P6SM BKN100\n"))
	}))
	defer server.Close()

	client := aviationweather.NewStationFileClient(aviationweather.StationFileConfig{BaseURL: server.URL})

	raw, err := client.FetchRaw(context.Background(), "KDEN", wx.KindForecast)
	require.NoError(t, err)
	assert.Equal(t, "TAF KDEN 121720Z 1218/1324 36012KT P6SM SCT080 FM130200 33008KT P6SM BKN100", raw.RawText)
}

func TestStationFileClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, "", wx.ErrStationNotFound},
		{"missing stamp", http.StatusOK, "KDEN 121753Z 36010KT\n", wx.ErrGrammarMismatch},
		{"stamp only", http.StatusOK, "2024/03/12 17:53\n", wx.ErrGrammarMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := aviationweather.NewStationFileClient(aviationweather.StationFileConfig{BaseURL: server.URL})
			_, err := client.FetchRaw(context.Background(), "KDEN", wx.KindObservation)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
