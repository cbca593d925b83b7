// Package mailer composes and delivers job-outcome notifications the way
// traditional cron does: by piping an RFC 5322 message to a local
// sendmail-compatible binary, never by speaking SMTP itself.
package mailer

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Outcome describes a finished job instance, enough to compose a
// notification without the mailer needing to know about catalog.Job or
// instance.Instance directly.
type Outcome struct {
	JobID     string
	Command   string
	Username  string
	Hostname  string
	StartedAt time.Time
	EndedAt   time.Time
	ExitCode  int
	Killed    bool
	Ran       bool
	Output    []byte
}

// Mailer pipes composed messages to a sendmail-compatible binary.
type Mailer struct {
	SendmailPath string
}

// New returns a Mailer that invokes sendmailPath for every Send call.
func New(sendmailPath string) *Mailer {
	return &Mailer{SendmailPath: sendmailPath}
}

// Send composes a notification for o and pipes it to the sendmail binary's
// stdin, addressed to each of to. A job with no configured mailto never
// reaches this call; that decision belongs to the caller.
func (m *Mailer) Send(to []string, o Outcome) error {
	if len(to) == 0 {
		return nil
	}
	msg := Compose(to, o)

	// #nosec G204 -- SendmailPath is an operator-configured trusted binary,
	// not derived from job input.
	cmd := exec.Command(m.SendmailPath, append([]string{"-t"})...)
	cmd.Stdin = bytes.NewReader(msg)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("sendmail %s: %w: %s", m.SendmailPath, err, stderr.String())
	}
	return nil
}

// Compose builds the raw message pcron pipes to sendmail: a subject line
// identifying the job and its outcome, and a body holding the instance's
// captured output followed by a status summary.
func Compose(to []string, o Outcome) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s@%s: %s %s\n", o.Username, o.Hostname, o.JobID, subjectOutcome(o))
	b.WriteString("\n")

	fmt.Fprintf(&b, "Command: %s\n", o.Command)
	fmt.Fprintf(&b, "Started: %s\n", o.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Ended:   %s\n", o.EndedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Status:  %s\n", statusLine(o))
	b.WriteString("\n")

	if len(o.Output) > 0 {
		b.Write(o.Output)
		if o.Output[len(o.Output)-1] != '\n' {
			b.WriteString("\n")
		}
	}
	return b.Bytes()
}

func subjectOutcome(o Outcome) string {
	switch {
	case !o.Ran:
		return "did not run"
	case o.Killed:
		return "killed"
	case o.ExitCode != 0:
		return fmt.Sprintf("failed (%d)", o.ExitCode)
	default:
		return "completed"
	}
}

func statusLine(o Outcome) string {
	if !o.Ran {
		return "dropped before running"
	}
	if o.Killed {
		return "killed"
	}
	return fmt.Sprintf("exit %d", o.ExitCode)
}
