package httpapi

import "quantlab/internal/report"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status     string   `json:"status"`
	Strategies []string `json:"strategies"`
}

// SymbolsResponse lists stored symbols.
type SymbolsResponse struct {
	Interval string   `json:"interval"`
	Symbols  []string `json:"symbols"`
}

// StrategiesResponse lists registered strategies.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// IndicatorsResponse carries full indicator series for one symbol.
type IndicatorsResponse struct {
	Symbol     string                       `json:"symbol"`
	Indicators map[string]report.SeriesJSON `json:"indicators"`
}

// SweepResponse carries sweep points in grid order.
type SweepResponse struct {
	Symbol   string                  `json:"symbol"`
	Strategy string                  `json:"strategy"`
	Points   []report.SweepPointJSON `json:"points"`
}
