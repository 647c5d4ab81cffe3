package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promoguard/fraud-engine/internal/action"
	"github.com/promoguard/fraud-engine/internal/alert"
	"github.com/promoguard/fraud-engine/internal/analyzer"
	"github.com/promoguard/fraud-engine/internal/config"
	"github.com/promoguard/fraud-engine/internal/ledger"
	"github.com/promoguard/fraud-engine/internal/metrics"
	"github.com/promoguard/fraud-engine/internal/notification"
	"github.com/promoguard/fraud-engine/internal/report"
	"github.com/promoguard/fraud-engine/internal/sample"
	"github.com/promoguard/fraud-engine/internal/scoring"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.Default()

	detection := config.DetectionConfig{
		ViewLikeRatio:    50.0,
		ViewCommentRatio: 200.0,
		SpikePercentage:  500.0,
		SpikeTimeWindow:  30 * time.Minute,
		LookbackWindow:   24 * time.Hour,
		MaxSamplesPerKey: 500,

		RatioViewLikePenalty:    25,
		RatioViewCommentPenalty: 20,
		ZeroEngagementPenalty:   35,
		SpikeBasePenalty:        25,
		SpikeMaxPenalty:         40,
		TimingPenalty:           15,
		VelocityPairPenalty:     8,
		VelocityNegativePenalty: 10,
		VelocityMaxPenalty:      20,
		PlatformPenalty:         10,

		TimingCVThreshold:        0.1,
		TimingMinIntervals:       3,
		VelocityMinViews:         1.0,
		VelocityEngagementFactor: 0.001,

		TikTokMinLikeRate:       0.01,
		InstagramMinCommentRate: 0.002,

		MonitorThreshold: 20,
		WarningThreshold: 50,
		BanThreshold:     90,
	}

	led := ledger.New(ledger.NewMemoryStore(), config.LedgerConfig{
		Retention:    24 * time.Hour,
		WriteTimeout: time.Second,
		MaxRetries:   0,
		RetryDelay:   time.Millisecond,
	}, nil, logger)

	notifier := notification.NewManager(config.NotificationsConfig{}, nil, logger)
	dispatcher := alert.NewDispatcher(config.AlertingConfig{
		Window:              time.Hour,
		WarningAlertCount:   5,
		MonitorAlertCount:   10,
		WindowShards:        4,
		Retention:           24 * time.Hour,
		DispatchQueueSize:   32,
		DispatchWorkerCount: 1,
	}, alert.NewMemoryWindowStore(4), notifier, led, nil, logger)

	resolver, err := action.NewResolver(action.DefaultThresholds())
	require.NoError(t, err)

	an := analyzer.New(config.AnalyzerConfig{WorkerCount: 2, QueueSize: 16, Timeout: 5 * time.Second},
		sample.NewStore(detection.LookbackWindow, detection.MaxSamplesPerKey, logger),
		scoring.NewEngine(detection),
		resolver,
		action.NewNopExecutor(logger),
		dispatcher, led, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	dispatcher.Start(ctx)
	an.Start(ctx)

	handler := New(an, report.NewGenerator(led, logger), nil, metrics.NewCollector(), logger)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(func() {
		srv.Close()
		an.Stop()
		dispatcher.Stop()
		cancel()
	})
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	require.NoError(t, err)
	return resp
}

func TestHandleAnalyze(t *testing.T) {
	srv := newTestServer(t)

	t.Run("valid sample returns the analysis", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/analyze", sample.EngagementSample{
			Platform:     sample.PlatformYouTube,
			PromoterID:   "p1",
			CampaignID:   "c1",
			PostID:       "post-1",
			ViewCount:    10000,
			LikeCount:    800,
			CommentCount: 250,
			ObservedAt:   time.Now().UTC(),
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body analyzeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.NotNil(t, body.Analysis)
		assert.Equal(t, 0, body.Analysis.BotScore)
		assert.Equal(t, action.TierNone, body.Analysis.Action)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/api/v1/analyze", "application/json", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid sample is unprocessable", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/analyze", sample.EngagementSample{
			Platform:   "myspace",
			PromoterID: "p1",
			CampaignID: "c1",
			PostID:     "post-1",
			ObservedAt: time.Now().UTC(),
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestHandleHistory(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/analyze", sample.EngagementSample{
		Platform:     sample.PlatformYouTube,
		PromoterID:   "p9",
		CampaignID:   "c9",
		PostID:       "post-9",
		ViewCount:    10000,
		LikeCount:    800,
		CommentCount: 250,
		ObservedAt:   time.Now().UTC(),
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The analysis entry is persisted by a background writer.
	var body struct {
		PromoterID string                 `json:"promoter_id"`
		Count      int                    `json:"count"`
		Analyses   []*scoring.BotAnalysis `json:"analyses"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/v1/history/p9/c9")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false
		}
		return body.Count == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "p9", body.PromoterID)
	require.Len(t, body.Analyses, 1)
}

func TestHandleReports(t *testing.T) {
	srv := newTestServer(t)

	t.Run("daily report for an empty day", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/reports/daily?date=2026-08-01")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var rep report.DailyReport
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
		assert.Equal(t, 0, rep.TotalAnalyses)
	})

	t.Run("invalid date parameter", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/reports/daily?date=yesterday")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("monthly report", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/reports/monthly?month=2026-08")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}
