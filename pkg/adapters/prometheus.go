// Package adapters provides the upstream connectors peakwatch polls for
// observations.
//
// Each adapter implements the Source interface and returns one integer per
// Fetch call:
//   - SteamAdapter: current player count from the Steam Web API
//   - PrometheusAdapter: the value of a PromQL instant query
//
// Adapters only fetch and validate. Deciding whether a value is a record is
// left to the records package.
package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/HatiCode/peakwatch/pkg/records"
)

// PrometheusAdapter evaluates a PromQL expression through the Prometheus HTTP
// API (/api/v1/query) and returns the result as an observation.
//
// If multiple series are returned, their values are SUMMED.
type PrometheusAdapter struct {
	// ServerURL is the base URL to Prometheus, e.g. http://prometheus.monitoring.svc:9090
	ServerURL string
	// Query is the PromQL expression to evaluate.
	Query string
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (p *PrometheusAdapter) Name() string { return "prometheus" }

// Fetch implements Source. It respects the provided context for cancellation
// and deadlines.
func (p *PrometheusAdapter) Fetch(ctx context.Context) (int64, error) {
	if p.ServerURL == "" || p.Query == "" {
		return 0, errors.New("prometheus adapter: ServerURL and Query are required")
	}

	u, err := url.Parse(p.ServerURL)
	if err != nil {
		return 0, fmt.Errorf("invalid ServerURL: %w", err)
	}
	u = u.JoinPath("/api/v1/query")
	q := u.Query()
	q.Set("query", p.Query)
	u.RawQuery = q.Encode()

	cli := p.HTTPClient
	if cli == nil {
		cli = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := cli.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: prometheus: status %d", ErrFetch, resp.StatusCode)
	}

	var pr prometheusInstantResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return 0, fmt.Errorf("%w: decode prometheus response: %w", ErrFetch, err)
	}
	if pr.Status != "success" {
		return 0, fmt.Errorf("%w: prometheus status: %s", ErrFetch, pr.Status)
	}

	sum, err := sumInstantResult(pr.Data)
	if err != nil {
		return 0, err
	}
	return records.ValidateObservation(sum)
}

type prometheusInstantResponse struct {
	Status string                `json:"status"`
	Data   prometheusInstantData `json:"data"`
}

type prometheusInstantData struct {
	ResultType string `json:"resultType"`
	// Result is a list of series for "vector" and a single sample for "scalar".
	Result json.RawMessage `json:"result"`
}

type prometheusSample struct {
	Metric map[string]string `json:"metric"`
	// Value is [ <unix_time_float>, "<value_string>" ]
	Value []any `json:"value"`
}

func sumInstantResult(data prometheusInstantData) (float64, error) {
	switch data.ResultType {
	case "scalar":
		var pair []any
		if err := json.Unmarshal(data.Result, &pair); err != nil {
			return 0, fmt.Errorf("%w: decode scalar: %w", ErrFetch, err)
		}
		return sampleValue(pair)
	case "vector":
		var series []prometheusSample
		if err := json.Unmarshal(data.Result, &series); err != nil {
			return 0, fmt.Errorf("%w: decode vector: %w", ErrFetch, err)
		}
		if len(series) == 0 {
			return 0, fmt.Errorf("%w: prometheus query returned no series", ErrFetch)
		}
		var sum float64
		for _, s := range series {
			v, err := sampleValue(s.Value)
			if err != nil {
				return 0, err
			}
			sum += v
		}
		return sum, nil
	default:
		return 0, fmt.Errorf("%w: unsupported result type %q", ErrFetch, data.ResultType)
	}
}

func sampleValue(pair []any) (float64, error) {
	if len(pair) != 2 {
		return 0, fmt.Errorf("%w: invalid value pair length: %d", ErrFetch, len(pair))
	}
	switch v := pair[1].(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: parse value: %w", records.ErrInvalidObservation, err)
		}
		return f, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: unexpected value type %T", records.ErrInvalidObservation, v)
	}
}
