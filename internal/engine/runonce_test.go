package engine

import (
	"context"
	"strings"
	"testing"
)

func TestRunOneJobExecutesStartupJob(t *testing.T) {
	e, _ := newTestEngine(t, "[j]\ncommand: true\n")

	exitCode, err := e.RunOneJob(context.Background(), "j")
	if err != nil {
		t.Fatalf("RunOneJob: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", exitCode)
	}
}

func TestScheduledJobIsNotStartupJob(t *testing.T) {
	e, _ := newTestEngine(t, "[j]\ncommand: true\ntime: * * * * *\n")
	cat := e.catalogSnapshot()
	if cat.Jobs["j"].Startup() {
		t.Fatalf("job with a time source should not be a startup job")
	}
}

func TestRunOneJobUnknownJob(t *testing.T) {
	e, _ := newTestEngine(t, "[j]\ncommand: true\n")
	if _, err := e.RunOneJob(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown job id")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Fatalf("unexpected error: %v", err)
	}
}
