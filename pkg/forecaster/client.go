// Package forecaster provides a typed client for the remote time-series
// inference endpoint.
package forecaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/velocityiq/velocityiq-engine/pkg/apperrors"
	"github.com/velocityiq/velocityiq-engine/pkg/config"
	"github.com/velocityiq/velocityiq-engine/pkg/logging"
)

// maxResponseBytes caps how much of an inference response is read into memory.
const maxResponseBytes = 16 << 20

// Series is one item's daily demand history submitted for forecasting.
type Series struct {
	ItemID string
	Start  time.Time
	Target []float64
}

// Prediction holds the per-quantile forecasts returned for a single item.
// Quantiles is keyed the way the endpoint keys them, e.g. "0.5".
type Prediction struct {
	ItemID    string
	Quantiles map[string][]float64
}

// Quantile returns the forecast values for one quantile level, e.g. 0.5.
func (p Prediction) Quantile(level float64) []float64 {
	return p.Quantiles[quantileKey(level)]
}

// ForecastClient defines the interface for forecast operations.
// Use this interface for dependency injection to enable mocking in tests.
type ForecastClient interface {
	// Predict submits demand histories and returns one prediction per series,
	// in the same order as the input.
	Predict(ctx context.Context, series []Series) ([]Prediction, error)

	// GetModelVersion returns the configured model identifier.
	GetModelVersion() string

	// GetEndpoint returns the configured endpoint URL.
	GetEndpoint() string
}

// Client calls the remote inference endpoint over HTTP.
type Client struct {
	httpClient       *http.Client
	endpoint         string
	apiToken         string
	modelVersion     string
	predictionLength int
	quantileLevels   []float64
	freq             string
	maxBatchSize     int
	logger           *zap.Logger
}

// Ensure Client implements ForecastClient at compile time.
var _ ForecastClient = (*Client)(nil)

// NewClient creates a forecast client from configuration.
func NewClient(cfg *config.ForecasterConfig, logger *zap.Logger) (*Client, error) {
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("endpoint URL is required")
	}
	if cfg.PredictionDays <= 0 {
		return nil, fmt.Errorf("prediction days must be positive")
	}
	if len(cfg.QuantileLevels) == 0 {
		return nil, fmt.Errorf("at least one quantile level is required")
	}
	// The stored forecast schema needs the median and the 0.1/0.9 band.
	for _, required := range []float64{0.1, 0.5, 0.9} {
		if !slices.Contains(cfg.QuantileLevels, required) {
			return nil, fmt.Errorf("quantile levels must include %s", quantileKey(required))
		}
	}

	return &Client{
		httpClient:       &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		endpoint:         strings.TrimSuffix(cfg.EndpointURL, "/"),
		apiToken:         cfg.APIToken,
		modelVersion:     cfg.ModelVersion,
		predictionLength: cfg.PredictionDays,
		quantileLevels:   cfg.QuantileLevels,
		freq:             cfg.Freq,
		maxBatchSize:     cfg.MaxBatchSize,
		logger:           logger.Named("forecaster"),
	}, nil
}

type requestInput struct {
	Target []float64 `json:"target"`
	ItemID string    `json:"item_id"`
	Start  string    `json:"start"`
}

type requestParameters struct {
	PredictionLength int       `json:"prediction_length"`
	QuantileLevels   []float64 `json:"quantile_levels"`
	Freq             string    `json:"freq"`
	BatchSize        int       `json:"batch_size"`
}

type inferenceRequest struct {
	Inputs     []requestInput    `json:"inputs"`
	Parameters requestParameters `json:"parameters"`
}

type inferenceResponse struct {
	Predictions []map[string]json.RawMessage `json:"predictions"`
}

// Predict submits the demand histories in one batched inference call.
// The returned slice is aligned with the input: predictions[i] belongs to
// series[i], regardless of the order the endpoint answered in.
func (c *Client) Predict(ctx context.Context, series []Series) ([]Prediction, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: no input series", apperrors.ErrInvalidInput)
	}

	inputs := make([]requestInput, len(series))
	for i, s := range series {
		if len(s.Target) == 0 {
			return nil, fmt.Errorf("%w: series %q has an empty history", apperrors.ErrInvalidInput, s.ItemID)
		}
		inputs[i] = requestInput{
			Target: s.Target,
			ItemID: s.ItemID,
			Start:  s.Start.Format("2006-01-02"),
		}
	}

	batchSize := c.maxBatchSize
	if len(inputs) < batchSize {
		batchSize = len(inputs)
	}

	payload, err := json.Marshal(inferenceRequest{
		Inputs: inputs,
		Parameters: requestParameters{
			PredictionLength: c.predictionLength,
			QuantileLevels:   c.quantileLevels,
			Freq:             c.freq,
			BatchSize:        batchSize,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	c.logger.Debug("inference request",
		zap.String("model_version", c.modelVersion),
		zap.Int("series", len(series)),
		zap.Int("prediction_length", c.predictionLength),
		zap.Int("batch_size", batchSize))

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("inference request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		fcErr := ClassifyError(err)
		fcErr.Endpoint = c.endpoint
		return nil, fcErr
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewErrorWithContext(ErrorTypeEndpoint, "read response body", true, err, c.endpoint, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		fcErr := classifyStatus(resp.StatusCode, logging.TruncateString(string(body), 512), c.endpoint)
		c.logger.Error("inference request rejected",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(fcErr))
		return nil, fcErr
	}

	predictions, err := c.parseResponse(body, series)
	if err != nil {
		c.logger.Error("inference response invalid",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}

	c.logger.Info("inference request completed",
		zap.Int("series", len(series)),
		zap.Duration("elapsed", time.Since(start)))

	return predictions, nil
}

// GetModelVersion returns the configured model identifier.
func (c *Client) GetModelVersion() string {
	return c.modelVersion
}

// GetEndpoint returns the configured endpoint URL.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}

// parseResponse decodes and validates a 200 response body. Every contract
// violation is reported as an ErrorTypeValidation error: retrying a malformed
// response would only fetch the same payload again.
func (c *Client) parseResponse(body []byte, series []Series) ([]Prediction, error) {
	var decoded inferenceResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, NewErrorWithContext(ErrorTypeValidation, "response is not valid JSON", false, err, c.endpoint, http.StatusOK)
	}

	if len(decoded.Predictions) != len(series) {
		return nil, NewError(ErrorTypeValidation,
			fmt.Sprintf("expected %d predictions, got %d", len(series), len(decoded.Predictions)), false, nil)
	}

	parsed := make([]Prediction, len(decoded.Predictions))
	byItemID := make(map[string]int, len(decoded.Predictions))
	itemIDCount := 0

	for i, raw := range decoded.Predictions {
		pred := Prediction{Quantiles: make(map[string][]float64, len(c.quantileLevels))}

		if idRaw, ok := raw["item_id"]; ok {
			if err := json.Unmarshal(idRaw, &pred.ItemID); err != nil {
				return nil, NewError(ErrorTypeValidation,
					fmt.Sprintf("prediction %d has a non-string item_id", i), false, err)
			}
		}

		for _, level := range c.quantileLevels {
			key := quantileKey(level)
			valuesRaw, ok := raw[key]
			if !ok {
				return nil, NewError(ErrorTypeValidation,
					fmt.Sprintf("prediction %d is missing quantile %s", i, key), false, nil)
			}

			var values []float64
			if err := json.Unmarshal(valuesRaw, &values); err != nil {
				return nil, NewError(ErrorTypeValidation,
					fmt.Sprintf("prediction %d quantile %s is not a numeric array", i, key), false, err)
			}
			if len(values) != c.predictionLength {
				return nil, NewError(ErrorTypeValidation,
					fmt.Sprintf("prediction %d quantile %s has %d values, want %d", i, key, len(values), c.predictionLength), false, nil)
			}
			for j, v := range values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, NewError(ErrorTypeValidation,
						fmt.Sprintf("prediction %d quantile %s contains a non-finite value", i, key), false, nil)
				}
				// Probabilistic models occasionally dip below zero on sparse
				// history; demand cannot.
				if v < 0 {
					values[j] = 0
				}
			}
			pred.Quantiles[key] = values
		}

		if pred.ItemID != "" {
			byItemID[pred.ItemID] = i
			itemIDCount++
		}
		parsed[i] = pred
	}

	// Align with the request by item_id echo when the endpoint provides it.
	if itemIDCount == len(series) {
		ordered := make([]Prediction, len(series))
		for i, s := range series {
			idx, ok := byItemID[s.ItemID]
			if !ok {
				return nil, NewError(ErrorTypeValidation,
					fmt.Sprintf("response has no prediction for item %q", s.ItemID), false, nil)
			}
			ordered[i] = parsed[idx]
		}
		return ordered, nil
	}

	// No (or partial) item_id echo: fall back to positional order.
	if itemIDCount > 0 {
		c.logger.Warn("inference response echoed item_id on only some predictions, using positional order",
			zap.Int("with_item_id", itemIDCount),
			zap.Int("total", len(parsed)))
	}
	for i := range parsed {
		parsed[i].ItemID = series[i].ItemID
	}
	return parsed, nil
}

// quantileKey formats a quantile level the way the endpoint keys its response,
// e.g. 0.5 -> "0.5".
func quantileKey(level float64) string {
	return strconv.FormatFloat(level, 'g', -1, 64)
}
