package supervisor

import (
	"fmt"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// Identity is the account information an instance's environment is
// synthesized from: the OS user pcron itself runs as (see CurrentIdentity).
type Identity struct {
	User    string
	UID     string
	GID     string
	Home    string
	Shell   string
	RootUID bool
}

// CurrentIdentity resolves the identity pcron itself is running as.
func CurrentIdentity() (Identity, error) {
	u, err := user.Current()
	if err != nil {
		return Identity{}, fmt.Errorf("resolve current user: %w", err)
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return Identity{
		User:    u.Username,
		UID:     u.Uid,
		GID:     u.Gid,
		Home:    u.HomeDir,
		Shell:   shell,
		RootUID: u.Uid == "0",
	}, nil
}

// basePath returns the PATH a login shell for this identity would start
// with, including the sbin variants root accounts traditionally get.
func basePath(id Identity) string {
	if id.RootUID {
		return "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	}
	return "/usr/local/bin:/usr/bin:/bin"
}

// BuildEnv synthesizes the environment an instance's command runs under:
// identity variables (USER, LOGNAME, HOME, SHELL, PATH, and on POSIX
// systems UID/GID), pcron's own job-addressing variables (PCRONDIR, JOB_ID,
// JOB_QUEUE), caller-supplied global overrides, and finally any
// per-job overrides — in that order, so a job can override anything pcron
// would otherwise set. ${VAR} references in values are expanded against the
// fully composed map, same as the rest of this codebase's environment
// composition.
func BuildEnv(id Identity, pcronDir, jobID, queueName string, globalOverrides, jobOverrides []string) []string {
	m := make(map[string]string)
	m["USER"] = id.User
	m["LOGNAME"] = id.User
	m["HOME"] = id.Home
	m["SHELL"] = id.Shell
	m["PATH"] = basePath(id)
	if runtime.GOOS != "windows" {
		m["UID"] = id.UID
		m["GID"] = id.GID
	}
	m["PCRONDIR"] = pcronDir
	m["JOB_ID"] = jobID
	m["JOB_QUEUE"] = queueName

	applyOverrides(m, globalOverrides)
	applyOverrides(m, jobOverrides)

	expanded := make(map[string]string, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}

	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

func applyOverrides(m map[string]string, kvs []string) {
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		k := kv[:i]
		if k == "" {
			continue
		}
		m[k] = kv[i+1:]
	}
}

func expand(s string, m map[string]string) string {
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
