package server

import (
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/hazz-dev/watchdog/internal/status"
)

// handleMetrics renders the current snapshots in the Prometheus text format.
// Values are unrounded.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.status.Snapshots(r.Context())
	if err != nil {
		s.logger.Error("Snapshots", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	w.Header().Set("Content-Type", string(format))
	enc := expfmt.NewEncoder(w, format)
	for _, mf := range metricFamilies(snaps) {
		if err := enc.Encode(mf); err != nil {
			s.logger.Error("encoding metrics", "family", mf.GetName(), "error", err)
			return
		}
	}
}

func metricFamilies(snaps []status.Snapshot) []*dto.MetricFamily {
	uptime := gaugeFamily("watchdog_uptime_percent", "Share of successful probes in the window, 0-100.")
	p95 := gaugeFamily("watchdog_latency_p95_ms", "95th percentile latency of successful probes over 24h, in milliseconds.")
	samples := gaugeFamily("watchdog_samples_24h", "Number of probes recorded over 24h.")
	score := gaugeFamily("watchdog_score", "Composite health score, 0-100.")
	grade := gaugeFamily("watchdog_grade_info", "Letter grade of the health score; value is always 1.")

	for _, s := range snaps {
		uptime.Metric = append(uptime.Metric,
			gauge(s.Uptime24h, "url", s.URL, "window", "24h"),
			gauge(s.Uptime7d, "url", s.URL, "window", "7d"),
		)
		if s.P95Ms24h != nil {
			p95.Metric = append(p95.Metric, gauge(*s.P95Ms24h, "url", s.URL))
		}
		samples.Metric = append(samples.Metric, gauge(float64(s.Samples24h), "url", s.URL))
		score.Metric = append(score.Metric, gauge(s.Score, "url", s.URL))
		grade.Metric = append(grade.Metric, gauge(1, "url", s.URL, "grade", string(s.Grade)))
	}

	out := make([]*dto.MetricFamily, 0, 5)
	for _, mf := range []*dto.MetricFamily{uptime, p95, samples, score, grade} {
		if len(mf.Metric) > 0 {
			out = append(out, mf)
		}
	}
	return out
}

func gaugeFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

// gauge builds a gauge sample from value and alternating label names and values.
func gauge(value float64, labels ...string) *dto.Metric {
	m := &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(value)}}
	for i := 0; i+1 < len(labels); i += 2 {
		m.Label = append(m.Label, &dto.LabelPair{
			Name:  proto.String(labels[i]),
			Value: proto.String(labels[i+1]),
		})
	}
	return m
}
