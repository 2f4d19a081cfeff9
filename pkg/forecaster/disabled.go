package forecaster

import "context"

// Disabled is the ForecastClient for deployments without an inference
// endpoint. Predict fails with a non-retryable endpoint error; the dashboard
// keeps serving whatever forecasts are already stored.
type Disabled struct {
	modelVersion string
}

var _ ForecastClient = (*Disabled)(nil)

// NewDisabled creates a client that rejects every prediction request.
func NewDisabled(modelVersion string) *Disabled {
	return &Disabled{modelVersion: modelVersion}
}

func (d *Disabled) Predict(context.Context, []Series) ([]Prediction, error) {
	return nil, NewError(ErrorTypeEndpoint, "no forecast endpoint configured", false, nil)
}

func (d *Disabled) GetModelVersion() string { return d.modelVersion }

func (d *Disabled) GetEndpoint() string { return "" }
