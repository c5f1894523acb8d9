package models

import "testing"

func TestIsTerminal(t *testing.T) {
	terminal := []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}

	active := []JobStatus{JobStatusQueued, JobStatusProcessing}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("Expected %s to not be terminal", s)
		}
	}
}

func TestAllTerminal_MixedStatuses(t *testing.T) {
	jobs := []Job{
		{ID: "a", Status: JobStatusCompleted},
		{ID: "b", Status: JobStatusProcessing},
	}

	if AllTerminal(jobs) {
		t.Error("Expected AllTerminal to be false while a job is still processing")
	}

	jobs[1].Status = JobStatusFailed
	if !AllTerminal(jobs) {
		t.Error("Expected AllTerminal to be true once every job is terminal")
	}
}

func TestAllTerminal_EmptySlice(t *testing.T) {
	if !AllTerminal(nil) {
		t.Error("Expected AllTerminal to be true for an empty slice")
	}
}
