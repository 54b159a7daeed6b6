package quant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlens/marketlens/internal/quant"
)

func TestSentimentAnalyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sentiment/TSLA", r.URL.Path)
		w.Write([]byte(`{
			"aggregate": {"label":"bullish","score":0.62,"confidence":0.81,"post_count":140,"sources":{"stocktwits":90,"reddit":50}},
			"posts": [{"platform":"reddit","content":"to the moon","sentiment":{"label":"bullish"}}]
		}`))
	}))
	defer srv.Close()

	client := quant.NewSentimentClient(srv.URL, nil)

	res, err := client.Analyze(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.Equal(t, "bullish", res.Aggregate.Label)
	assert.Equal(t, 140, res.Aggregate.PostCount)
	assert.Equal(t, 90, res.Aggregate.Sources["stocktwits"])
	require.Len(t, res.Posts, 1)
	assert.Equal(t, "reddit", res.Posts[0].Platform)
	assert.Equal(t, "bullish", res.Posts[0].Sentiment.Label)
}

func TestSentimentServiceDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := quant.NewSentimentClient(srv.URL, nil)

	_, err := client.Analyze(context.Background(), "TSLA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestForecast(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/forecast/AAPL", r.URL.Path)
		w.Write([]byte(`{
			"forecast": [
				{"date":"2026-09-01","predicted_close":231.4,"upper_bound":238.1,"lower_bound":224.7},
				{"date":"2026-09-02","predicted_close":232.0,"upper_bound":239.5,"lower_bound":224.5}
			],
			"model_info": {"architecture":"lstm","trained_at":"2026-08-29"}
		}`))
	}))
	defer srv.Close()

	client := quant.NewForecastClient(srv.URL, nil)

	res, err := client.Forecast(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, res.Forecast, 2)
	assert.Equal(t, 231.4, res.Forecast[0].PredictedClose)
	assert.Equal(t, "lstm", res.ModelInfo["architecture"])
	assert.Empty(t, res.Error)
}

func TestForecastServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"insufficient history for ticker"}`))
	}))
	defer srv.Close()

	client := quant.NewForecastClient(srv.URL, nil)

	res, err := client.Forecast(context.Background(), "IPO1")
	require.NoError(t, err)
	assert.Equal(t, "insufficient history for ticker", res.Error)
	assert.Empty(t, res.Forecast)
}
