package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"quantlab/internal/report"
	"quantlab/internal/util"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Strategies: s.engine.Strategies()})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = s.engine.Options().Interval
	}
	syms, err := s.engine.Symbols(r.Context(), interval)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if syms == nil {
		syms = []string{}
	}
	writeJSON(w, SymbolsResponse{Interval: interval, Symbols: syms})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, StrategiesResponse{Strategies: s.engine.Strategies()})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.engine.Analyze(r.Context(), symbol, q.Get("interval"), start, end)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, report.Analysis(a, q.Get("series") == "true"))
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	set, err := s.engine.Indicators(r.Context(), symbol, q.Get("interval"), start, end)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	// ?name= may repeat; absent means every indicator.
	names := q["name"]
	if len(names) == 0 {
		names = set.Names()
	}
	resp := IndicatorsResponse{Symbol: symbol, Indicators: make(map[string]report.SeriesJSON, len(names))}
	for _, name := range names {
		series, ok := set[name]
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown indicator %q (have %v)", name, set.Names()))
			return
		}
		resp.Indicators[name] = report.Series(series)
	}
	writeJSON(w, resp)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.engine.Diagnose(r.Context(), symbol, q.Get("interval"), start, end)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, report.Diagnostics(d))
}

// handleCorrelation takes two or more ?symbol= parameters.
func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbols := make([]string, len(q["symbol"]))
	for i, sym := range q["symbol"] {
		symbols[i] = strings.ToUpper(sym)
	}

	c, err := s.engine.Correlate(r.Context(), symbols, q.Get("interval"), start, end)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, report.Correlation(c))
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var body report.BacktestRequestJSON
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body.Symbol = strings.ToUpper(body.Symbol)
	req, err := body.Apply(s.engine.Request(body.Symbol))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	res, err := s.engine.Backtest(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.metrics.Backtests.WithLabelValues(res.Strategy).Inc()
	writeJSON(w, report.Backtest(res, body.Equity))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var body report.SweepRequestJSON
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body.Symbol = strings.ToUpper(body.Symbol)
	req, err := body.Apply(s.engine.Request(body.Symbol))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	results, err := s.engine.Sweep(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.metrics.Backtests.WithLabelValues(req.Base.Strategy).Add(float64(len(results)))
	writeJSON(w, SweepResponse{Symbol: req.Base.Symbol, Strategy: req.Base.Strategy, Points: report.Sweep(results)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

func parseRange(startStr, endStr string) (start, end time.Time, err error) {
	if start, err = util.ParseDate(startStr); err != nil {
		return
	}
	end, err = util.ParseDate(endStr)
	return
}
