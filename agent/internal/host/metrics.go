package host

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const defaultScrapeTimeout = 5 * time.Second

// Metric families exposed by the host's Prometheus exporter plugin.
const (
	// Heater temperatures, one series per heater, labelled identifier="bed"|"tool0"|...
	metricTempActual = "octoprint_temperature_actual"
	metricTempTarget = "octoprint_temperature_target"

	// Job completion in percent.
	metricProgress = "octoprint_progress"

	// Job timing in seconds.
	metricTimeElapsed = "octoprint_print_time_elapsed_seconds"
	metricTimeLeft    = "octoprint_print_time_left_seconds"

	heaterLabel = "identifier"
)

// MetricsController reads temperatures and progress from a Prometheus
// exposition and delegates state and job lookups to base.
type MetricsController struct {
	Controller
	endpoint string
	client   *http.Client
}

// NewMetricsController wraps base, reading metrics from endpoint.
func NewMetricsController(base Controller, endpoint string) *MetricsController {
	return &MetricsController{
		Controller: base,
		endpoint:   endpoint,
		client:     &http.Client{Timeout: defaultScrapeTimeout},
	}
}

// Temperatures returns one Reading per heater found in the exposition.
func (m *MetricsController) Temperatures(ctx context.Context) (map[string]Reading, error) {
	mfs, err := fetchMetrics(ctx, m.client, m.endpoint)
	if err != nil {
		return nil, fmt.Errorf("host: metrics temperatures: %w", err)
	}
	out := make(map[string]Reading)
	for heater, v := range byLabel(mfs[metricTempActual], heaterLabel) {
		r := out[heater]
		r.Actual = v
		out[heater] = r
	}
	for heater, v := range byLabel(mfs[metricTempTarget], heaterLabel) {
		r := out[heater]
		r.Target = v
		out[heater] = r
	}
	return out, nil
}

// Progress returns job progress. Families missing from the exposition leave
// the corresponding field nil.
func (m *MetricsController) Progress(ctx context.Context) (Progress, error) {
	mfs, err := fetchMetrics(ctx, m.client, m.endpoint)
	if err != nil {
		return Progress{}, fmt.Errorf("host: metrics progress: %w", err)
	}
	return Progress{
		Completion:    firstValue(mfs[metricProgress]),
		PrintTime:     firstValue(mfs[metricTimeElapsed]),
		PrintTimeLeft: firstValue(mfs[metricTimeLeft]),
	}, nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	if err != nil {
		slog.Debug("host: partial metrics parse", "err", err)
	}
	return mfs, nil
}

// metricValue returns the sample value of m whatever its type.
func metricValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	}
	return 0, false
}

// firstValue returns the first sample of mf, or nil when mf is absent or empty.
func firstValue(mf *dto.MetricFamily) *float64 {
	if mf == nil {
		return nil
	}
	for _, m := range mf.GetMetric() {
		if v, ok := metricValue(m); ok {
			return &v
		}
	}
	return nil
}

// byLabel indexes the samples of mf by the value of label.
func byLabel(mf *dto.MetricFamily, label string) map[string]*float64 {
	out := make(map[string]*float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		var key string
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				key = lp.GetValue()
			}
		}
		if key == "" {
			continue
		}
		if v, ok := metricValue(m); ok {
			out[key] = &v
		}
	}
	return out
}
