package wfs_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/UnknownOlympus/muniflow/internal/metrics"
	"github.com/UnknownOlympus/muniflow/internal/models"
	"github.com/UnknownOlympus/muniflow/internal/wfs"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockHTTPClient is a mock implementation of HTTPClient for testing.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return m.doFunc(req)
}

// recordingClock fires every After immediately and remembers the requested pauses.
type recordingClock struct {
	clockwork.Clock

	mu     sync.Mutex
	pauses []time.Duration
}

func newRecordingClock() *recordingClock {
	return &recordingClock{Clock: clockwork.NewFakeClock()}
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.pauses = append(c.pauses, d)
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *recordingClock) Pauses() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.pauses...)
}

// warnCounter is a slog handler counting warning records. Debug messages are kept too.
type warnCounter struct {
	mu     sync.Mutex
	warns  int
	debugs []slog.Record
}

func (h *warnCounter) Enabled(context.Context, slog.Level) bool { return true }

func (h *warnCounter) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch r.Level {
	case slog.LevelWarn:
		h.warns++
	case slog.LevelDebug:
		h.debugs = append(h.debugs, r.Clone())
	}
	return nil
}

func (h *warnCounter) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *warnCounter) WithGroup(string) slog.Handler      { return h }

func (h *warnCounter) Warns() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.warns
}

// Debug returns the debug records with the given message.
func (h *warnCounter) Debug(msg string) []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	var records []slog.Record
	for _, r := range h.debugs {
		if r.Message == msg {
			records = append(records, r)
		}
	}
	return records
}

const featureBody = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "MultiPoint", "coordinates": [[139.7, 35.6]]},
      "properties": {
        "地点コード": "3110010",
        "上り・小型交通量": 4,
        "上り・大型交通量": 1,
        "上り・車種判別不能交通量": 0,
        "下り・小型交通量": 3,
        "下り・大型交通量": 2,
        "下り・車種判別不能交通量": null
      }
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [139.8, 35.7]},
      "properties": {
        "上り・小型交通量": "7",
        "下り・小型交通量": "1.0"
      }
    }
  ]
}`

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func testQuery() wfs.QuerySpec {
	return wfs.BuildQuery(
		orb.Bound{Min: orb.Point{139, 35}, Max: orb.Point{140, 36}},
		wfs.QueryParams{RoadType: "3", Timecode: "202505130900"},
	)
}

func newTestClient(client wfs.HTTPClient, clock clockwork.Clock, handler slog.Handler) (*wfs.Client, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())

	return wfs.NewClientWithHTTPClient(client, wfs.ClientConfig{
		Retry:   wfs.DefaultRetryPolicy(),
		Limiter: rate.NewLimiter(rate.Inf, 0),
		Clock:   clock,
		Metrics: m,
		Logger:  slog.New(handler),
	}), m
}

func TestClient_Fetch(t *testing.T) {
	ctx := t.Context()

	t.Run("successful fetch", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, http.MethodGet, req.Method)
				assert.Contains(t, req.URL.String(), wfs.DefaultServer)
				assert.Equal(t, "GetFeature", req.URL.Query().Get("request"))
				assert.Equal(t, testQuery().CQLFilter, req.URL.Query().Get("cql_filter"))
				assert.Equal(t, "application/json", req.Header.Get("Accept"))

				return jsonResponse(http.StatusOK, featureBody), nil
			},
		}
		clock := newRecordingClock()
		client, m := newTestClient(mockClient, clock, &warnCounter{})

		points, err := client.Fetch(ctx, testQuery())

		require.NoError(t, err)
		require.Len(t, points, 2)

		assert.Equal(t, orb.Point{139.7, 35.6}, points[0].Location)
		assert.Equal(t, "3110010", points[0].PointCode)
		assert.Equal(t, 4, points[0].Measurements[models.UpLight])
		assert.Equal(t, 0, points[0].Measurements[models.DownUnclassified])

		assert.Equal(t, orb.Point{139.8, 35.7}, points[1].Location)
		assert.Equal(t, 7, points[1].Measurements[models.UpLight])
		assert.Equal(t, 1, points[1].Measurements[models.DownLight])
		assert.Equal(t, 0, points[1].Measurements[models.UpHeavy])

		assert.Empty(t, clock.Pauses())
		assert.InDelta(t, 1, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("success")), 0)
	})

	t.Run("features without point geometry are skipped", func(t *testing.T) {
		body := `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "geometry": {"type": "LineString", "coordinates": [[139.7, 35.6], [139.8, 35.7]]},
      "properties": {"地点コード": "3110001", "上り・小型交通量": 9}
    },
    {
      "type": "Feature",
      "geometry": {"type": "Point", "coordinates": [139.8, 35.7]},
      "properties": {"地点コード": "3110002", "上り・小型交通量": 2}
    }
  ]
}`
		mockClient := &mockHTTPClient{
			doFunc: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, body), nil
			},
		}
		handler := &warnCounter{}
		client, _ := newTestClient(mockClient, newRecordingClock(), handler)

		points, err := client.Fetch(ctx, testQuery())

		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, "3110002", points[0].PointCode)

		skipped := handler.Debug("Skipping feature without point geometry")
		require.Len(t, skipped, 1)
		attrs := map[string]string{}
		skipped[0].Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.String()
			return true
		})
		assert.Equal(t, "0", attrs["feature"])
		assert.Equal(t, "LineString", attrs["geometry"])
		assert.Equal(t, 0, handler.Warns())
	})

	t.Run("empty collection is a valid result", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"type":"FeatureCollection","features":[]}`), nil
			},
		}
		client, _ := newTestClient(mockClient, newRecordingClock(), &warnCounter{})

		points, err := client.Fetch(ctx, testQuery())

		require.NoError(t, err)
		assert.Empty(t, points)
	})

	t.Run("fails twice then succeeds", func(t *testing.T) {
		calls := 0
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				calls++
				if calls <= 2 {
					return nil, assert.AnError
				}
				return jsonResponse(http.StatusOK, featureBody), nil
			},
		}
		clock := newRecordingClock()
		warns := &warnCounter{}
		client, m := newTestClient(mockClient, clock, warns)

		points, err := client.Fetch(ctx, testQuery())

		require.NoError(t, err)
		assert.Len(t, points, 2)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, warns.Warns())
		assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Pauses())
		assert.InDelta(t, 2, testutil.ToFloat64(m.FetchAttempts.WithLabelValues("error")), 0)
	})

	t.Run("always fails", func(t *testing.T) {
		calls := 0
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				calls++
				return jsonResponse(http.StatusServiceUnavailable, "maintenance"), nil
			},
		}
		clock := newRecordingClock()
		warns := &warnCounter{}
		client, _ := newTestClient(mockClient, clock, warns)

		points, err := client.Fetch(ctx, testQuery())

		require.ErrorIs(t, err, wfs.ErrFetchFailed)
		require.ErrorContains(t, err, "status 503: maintenance")
		assert.Nil(t, points)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 3, warns.Warns())
		assert.Len(t, clock.Pauses(), 2)
	})

	t.Run("service exception", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK,
					`{"version":"2.0.0","exceptions":[{"code":"InvalidParameterValue","text":"bad filter"}]}`), nil
			},
		}
		client, _ := newTestClient(mockClient, newRecordingClock(), &warnCounter{})

		_, err := client.Fetch(ctx, testQuery())

		require.ErrorIs(t, err, wfs.ErrFetchFailed)
		require.ErrorIs(t, err, wfs.ErrServiceException)
		assert.ErrorContains(t, err, "bad filter")
	})

	t.Run("malformed measurement", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"type":"FeatureCollection","features":[
					{"type":"Feature","geometry":{"type":"Point","coordinates":[1,1]},
					 "properties":{"上り・小型交通量":"n/a"}}]}`), nil
			},
		}
		client, _ := newTestClient(mockClient, newRecordingClock(), &warnCounter{})

		_, err := client.Fetch(ctx, testQuery())

		require.ErrorIs(t, err, wfs.ErrInvalidMeasurement)
	})

	t.Run("invalid json", func(t *testing.T) {
		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `<html>`), nil
			},
		}
		client, _ := newTestClient(mockClient, newRecordingClock(), &warnCounter{})

		_, err := client.Fetch(ctx, testQuery())

		require.ErrorIs(t, err, wfs.ErrFetchFailed)
		assert.ErrorContains(t, err, "failed to decode feature response")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()

		mockClient := &mockHTTPClient{
			doFunc: func(_ *http.Request) (*http.Response, error) {
				t.Fatal("HTTP client should not be called when context is cancelled")
				return nil, nil
			},
		}
		client := wfs.NewClientWithHTTPClient(mockClient, wfs.ClientConfig{
			Retry:   wfs.DefaultRetryPolicy(),
			Limiter: rate.NewLimiter(rate.Every(time.Second), 1),
			Clock:   newRecordingClock(),
			Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
			Logger:  slog.Default(),
		})

		_, err := client.Fetch(cctx, testQuery())

		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestClient_FetchOverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "WFS", r.URL.Query().Get("service"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(featureBody))
	}))
	defer server.Close()

	client := wfs.NewClient(wfs.ClientConfig{
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
		Retry:   wfs.DefaultRetryPolicy(),
		Metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		Logger:  slog.Default(),
	})

	points, err := client.Fetch(t.Context(), testQuery())

	require.NoError(t, err)
	assert.Len(t, points, 2)
}
