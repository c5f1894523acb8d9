// Package metrics exports Prometheus metrics for the watch command: poll
// outcomes and observed job states.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

// Exporter holds the metric set on its own registry so tests and repeated
// watch sessions never collide on the global one.
type Exporter struct {
	registry *promclient.Registry

	pollsTotal      promclient.Counter
	pollErrorsTotal promclient.Counter
	jobsByStatus    *promclient.GaugeVec
}

// NewExporter creates an Exporter with all metrics registered.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: promclient.NewRegistry(),
		pollsTotal: promclient.NewCounter(promclient.CounterOpts{
			Name: "pixeljobs_polls_total",
			Help: "Total number of poll fetches applied",
		}),
		pollErrorsTotal: promclient.NewCounter(promclient.CounterOpts{
			Name: "pixeljobs_poll_errors_total",
			Help: "Total number of failed poll fetches",
		}),
		jobsByStatus: promclient.NewGaugeVec(
			promclient.GaugeOpts{
				Name: "pixeljobs_jobs_by_status",
				Help: "Jobs in the last applied poll response by status",
			},
			[]string{"status"},
		),
	}

	e.registry.MustRegister(e.pollsTotal)
	e.registry.MustRegister(e.pollErrorsTotal)
	e.registry.MustRegister(e.jobsByStatus)
	return e
}

// RecordPoll records one applied poll response and the job states it carried.
func (e *Exporter) RecordPoll(jobs []models.Job) {
	e.pollsTotal.Inc()

	e.jobsByStatus.Reset()
	for _, job := range jobs {
		e.jobsByStatus.WithLabelValues(string(job.Status)).Inc()
	}
}

// RecordPollError records one failed poll fetch.
func (e *Exporter) RecordPollError() {
	e.pollErrorsTotal.Inc()
}

// ServeHTTP serves the metric set in Prometheus text format.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	families, err := e.registry.Gather()
	if err != nil {
		http.Error(w, fmt.Sprintf("Error gathering metrics: %v", err), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			http.Error(w, fmt.Sprintf("Error encoding metrics: %v", err), http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write(buf.Bytes())
}
