package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pixeljobs/pixeljobs/pkg/models"
)

func scrape(t *testing.T, e *Exporter) string {
	t.Helper()
	server := httptest.NewServer(e)
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read scrape body: %v", err)
	}
	return string(body)
}

func TestExporter_RecordsPolls(t *testing.T) {
	e := NewExporter()
	e.RecordPoll([]models.Job{
		{ID: "a", Status: models.JobStatusProcessing},
		{ID: "b", Status: models.JobStatusProcessing},
		{ID: "c", Status: models.JobStatusCompleted},
	})
	e.RecordPoll([]models.Job{
		{ID: "a", Status: models.JobStatusCompleted},
	})
	e.RecordPollError()

	out := scrape(t, e)
	if !strings.Contains(out, "pixeljobs_polls_total 2") {
		t.Errorf("Expected 2 polls recorded, got:\n%s", out)
	}
	if !strings.Contains(out, "pixeljobs_poll_errors_total 1") {
		t.Errorf("Expected 1 poll error recorded, got:\n%s", out)
	}
	// Gauges reflect only the latest poll.
	if !strings.Contains(out, `pixeljobs_jobs_by_status{status="completed"} 1`) {
		t.Errorf("Expected latest poll gauges, got:\n%s", out)
	}
	if strings.Contains(out, `status="processing"`) {
		t.Errorf("Expected stale statuses cleared between polls, got:\n%s", out)
	}
}

func TestExporter_IndependentRegistries(t *testing.T) {
	a := NewExporter()
	b := NewExporter()
	a.RecordPoll(nil)

	if out := scrape(t, b); !strings.Contains(out, "pixeljobs_polls_total 0") {
		t.Errorf("Expected exporters not to share counters, got:\n%s", out)
	}
}
