package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render writes the catalog back out as crontab.ini text. Each job is
// rendered as a single flat section carrying its fully-merged attributes
// (inheritance is not re-expressed), so Parse(Render(c)) always yields a
// Catalog equivalent to c even though the text differs from any original
// hand-written, inheritance-using source.
func Render(cat *Catalog) string {
	ids := make([]string, 0, len(cat.Jobs))
	for id := range cat.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		j := cat.Jobs[id]
		fmt.Fprintf(&b, "[%s]\n", id)
		fmt.Fprintf(&b, "command: %s\n", j.Command)
		fmt.Fprintf(&b, "active: %s\n", strconv.FormatBool(j.Active))
		if j.Time != nil {
			fmt.Fprintf(&b, "time: %s\n", renderCalendar(j.Time))
		}
		if j.Interval > 0 {
			fmt.Fprintf(&b, "interval: %s\n", j.Interval.String())
		}
		if len(j.Post) > 0 {
			fmt.Fprintf(&b, "post: %s\n", strings.Join(j.Post, ", "))
		}
		if j.Condition != "" {
			fmt.Fprintf(&b, "condition: %s\n", j.Condition)
		}
		if j.Queue != "" {
			fmt.Fprintf(&b, "queue: %s\n", j.Queue)
		}
		fmt.Fprintf(&b, "conflict: %s\n", j.Conflict)
		fmt.Fprintf(&b, "warn: %s\n", strconv.FormatBool(j.Warn))
		fmt.Fprintf(&b, "mail: %s\n", strconv.FormatBool(j.Mail))
		if j.MailTo != "" {
			fmt.Fprintf(&b, "mailto: %s\n", j.MailTo)
		}
		if j.Username != "" {
			fmt.Fprintf(&b, "username: %s\n", j.Username)
		}
		if j.Hostname != "" {
			fmt.Fprintf(&b, "hostname: %s\n", j.Hostname)
		}
		if j.Sendmail != "" {
			fmt.Fprintf(&b, "sendmail: %s\n", j.Sendmail)
		}
		if j.Shell != "" {
			fmt.Fprintf(&b, "shell: %s\n", j.Shell)
		}
		if j.WorkDir != "" {
			fmt.Fprintf(&b, "workdir: %s\n", j.WorkDir)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderCalendar(c *Calendar) string {
	render := func(fs *FieldSet, wildcard bool) string {
		if wildcard {
			return "*"
		}
		vals := fs.Sorted()
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = strconv.Itoa(v)
		}
		return strings.Join(parts, ",")
	}
	return strings.Join([]string{
		render(c.Minute, c.Minute.Wildcard),
		render(c.Hour, c.Hour.Wildcard),
		render(c.Dom, c.DomStar),
		render(c.Month, c.Month.Wildcard),
		render(c.Dow, c.DowStar),
	}, " ")
}
