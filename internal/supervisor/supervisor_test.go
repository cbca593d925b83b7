package supervisor

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/loykin/pcron/internal/timesource"
)

func TestBuildEnvIncludesIdentityAndJobVars(t *testing.T) {
	id := Identity{User: "alice", UID: "1000", GID: "1000", Home: "/home/alice", Shell: "/bin/bash"}
	env := BuildEnv(id, "/home/alice/.pcron", "backup.db", "io", nil, nil)

	want := map[string]string{
		"USER": "alice", "LOGNAME": "alice", "HOME": "/home/alice",
		"SHELL": "/bin/bash", "PCRONDIR": "/home/alice/.pcron",
		"JOB_ID": "backup.db", "JOB_QUEUE": "io",
	}
	got := toMap(env)
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("env[%s] = %q, want %q", k, got[k], v)
		}
	}
}

func TestBuildEnvRootGetsSbinPath(t *testing.T) {
	id := Identity{User: "root", UID: "0", GID: "0", Home: "/root", Shell: "/bin/sh", RootUID: true}
	env := BuildEnv(id, "/root/.pcron", "j", "", nil, nil)
	got := toMap(env)
	if !strings.Contains(got["PATH"], "/sbin") {
		t.Fatalf("expected root PATH to include sbin, got %q", got["PATH"])
	}
}

func TestBuildEnvJobOverridesWinOverGlobal(t *testing.T) {
	id := Identity{User: "alice", Home: "/home/alice", Shell: "/bin/sh"}
	env := BuildEnv(id, "/x", "j", "", []string{"FOO=global"}, []string{"FOO=job"})
	got := toMap(env)
	if got["FOO"] != "job" {
		t.Fatalf("expected job override to win, got %q", got["FOO"])
	}
}

func TestBuildEnvExpandsVarReferences(t *testing.T) {
	id := Identity{User: "alice", Home: "/home/alice", Shell: "/bin/sh"}
	env := BuildEnv(id, "/x", "j", "", []string{"PROJECT_DIR=${HOME}/proj"}, nil)
	got := toMap(env)
	if got["PROJECT_DIR"] != "/home/alice/proj" {
		t.Fatalf("got %q", got["PROJECT_DIR"])
	}
}

func toMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

func TestStartCapturesOutput(t *testing.T) {
	var buf bytes.Buffer
	r, err := Start(Spec{JobID: "j", Command: "echo hello", Output: &buf})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-r.Done()
	code, killed, err := r.Result()
	if err != nil || killed || code != 0 {
		t.Fatalf("unexpected result: code=%d killed=%v err=%v", code, killed, err)
	}
	if strings.TrimSpace(buf.String()) != "hello" {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestStartReportsNonZeroExit(t *testing.T) {
	r, err := Start(Spec{JobID: "j", Command: "exit 7"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-r.Done()
	code, _, err := r.Result()
	if err != nil || code != 7 {
		t.Fatalf("code=%d err=%v, want 7", code, err)
	}
}

func TestTerminateEscalatesToKillAfterGrace(t *testing.T) {
	r, err := Start(Spec{JobID: "j", Command: "trap '' TERM; while true; do sleep 1; done"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	// Give the child a moment to install its TERM trap before terminating it.
	time.Sleep(50 * time.Millisecond)
	clock := timesource.NewVirtual(time.Now())
	done := make(chan struct{})
	go func() {
		r.Terminate(50*time.Millisecond, clock)
		close(done)
	}()

	// Let Terminate send TERM and start waiting, then advance the virtual
	// clock past the grace period to force the KILL escalation.
	time.Sleep(50 * time.Millisecond)
	clock.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Terminate did not escalate to KILL in time")
	}
	if _, killed, _ := r.Result(); !killed {
		t.Fatalf("expected killed=true")
	}
}

func TestEnvironmentScriptIsSourcedBeforeCommand(t *testing.T) {
	dir := t.TempDir()
	scriptPath := dir + "/environment.sh"
	if err := os.WriteFile(scriptPath, []byte("export GREETING=hola\n"), 0o644); err != nil {
		t.Fatalf("write environment.sh: %v", err)
	}
	var buf bytes.Buffer
	r, err := Start(Spec{
		JobID:             "j",
		Command:           `echo "$GREETING"`,
		EnvironmentScript: scriptPath,
		Output:            &buf,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-r.Done()
	if strings.TrimSpace(buf.String()) != "hola" {
		t.Fatalf("output = %q", buf.String())
	}
}
