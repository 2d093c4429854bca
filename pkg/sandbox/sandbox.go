// Package sandbox validates and executes proposed commands for the Action
// Engine (spec.md §4.9): a hard blocklist checked first, then an ordered
// glob-pattern risk classifier, then argv-vector execution with a timeout.
//
// Grounded on rcourtman-Pulse's internal/agentexec/policy.go (CommandPolicy:
// blocked-checked-first precedence, sudo-prefix normalization) adapted from
// regexp patterns to the spec's glob-pattern contract, and
// internal/agentexec/server.go's subprocess handling for Execute's
// timeout/signal shape.
package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// maxOutputBytes caps how much of stdout/stderr Execute retains, per
// spec.md §4.9.
const maxOutputBytes = 10_000

// blocklist is matched (as a "*" glob, via globMatch) against the
// space-joined argv. Any match makes the command categorically
// disallowed regardless of risk classification.
var blocklist = []string{
	"mkfs*",
	"dd if=*of=/dev/*",
	"rm -rf /",
	"rm -rf /*",
	"rm --no-preserve-root*",
	"*> /dev/sd*",
	"*> /dev/nvme*",
	"iptables -F*",
	"iptables -X*",
	":(){ :|:& };:*",
	"*curl*|*sh*",
	"*wget*|*sh*",
	"shutdown*",
	"reboot*",
	"poweroff*",
	"halt*",
	"mount -o remount,ro /*",
	"dd*of=/dev/mmcblk*",
	"dd*of=/dev/nvme*bs=*count=1*",
}

// protectedPaths are the targets checked specially against `rm` invocations
// per spec.md §4.9, regardless of the flags used.
var protectedPaths = []string{
	"/", "/etc", "/usr", "/var", "/bin", "/sbin", "/lib", "/lib32", "/lib64",
	"/home", "/root", "/proc", "/sys", "/dev",
}

// riskPattern pairs a glob matched against the joined argv with the risk it
// assigns. Evaluated in order; first match wins.
type riskPattern struct {
	pattern string
	risk    argusmodel.Risk
}

// riskTable is the ordered (pattern, risk) classification list, per
// spec.md §4.9. No match defaults to RiskMedium.
var riskTable = []riskPattern{
	{"ps*", argusmodel.RiskReadOnly},
	{"top*", argusmodel.RiskReadOnly},
	{"df*", argusmodel.RiskReadOnly},
	{"free*", argusmodel.RiskReadOnly},
	{"uptime*", argusmodel.RiskReadOnly},
	{"hostname*", argusmodel.RiskReadOnly},
	{"uname*", argusmodel.RiskReadOnly},
	{"cat /proc/*", argusmodel.RiskReadOnly},
	{"cat /var/log/*", argusmodel.RiskReadOnly},
	{"tail*", argusmodel.RiskReadOnly},
	{"head*", argusmodel.RiskReadOnly},
	{"grep*", argusmodel.RiskReadOnly},
	{"journalctl*", argusmodel.RiskReadOnly},
	{"lsof*", argusmodel.RiskReadOnly},
	{"netstat*", argusmodel.RiskReadOnly},
	{"ss*", argusmodel.RiskReadOnly},
	{"ip addr*", argusmodel.RiskReadOnly},
	{"ip route*", argusmodel.RiskReadOnly},
	{"systemctl status*", argusmodel.RiskReadOnly},
	{"docker ps*", argusmodel.RiskReadOnly},
	{"docker logs*", argusmodel.RiskReadOnly},
	{"docker inspect*", argusmodel.RiskReadOnly},
	{"ls*", argusmodel.RiskReadOnly},
	{"du*", argusmodel.RiskReadOnly},
	{"stat*", argusmodel.RiskReadOnly},
	{"find*", argusmodel.RiskLow},
	{"apt list*", argusmodel.RiskReadOnly},
	{"dpkg -l*", argusmodel.RiskReadOnly},

	{"systemctl reload*", argusmodel.RiskLow},
	{"docker restart*", argusmodel.RiskMedium},
	{"systemctl restart*", argusmodel.RiskMedium},
	{"systemctl stop*", argusmodel.RiskMedium},
	{"systemctl start*", argusmodel.RiskMedium},
	{"docker stop*", argusmodel.RiskMedium},
	{"docker start*", argusmodel.RiskMedium},
	{"apt-get install*", argusmodel.RiskMedium},
	{"rm -rf /tmp/*", argusmodel.RiskMedium},
	{"rm -rf /var/tmp/*", argusmodel.RiskMedium},

	{"kill -9*", argusmodel.RiskHigh},
	{"kill*", argusmodel.RiskHigh},
	{"pkill*", argusmodel.RiskHigh},
	{"killall*", argusmodel.RiskHigh},
	{"docker kill*", argusmodel.RiskHigh},
	{"docker rm*", argusmodel.RiskHigh},
	{"apt-get remove*", argusmodel.RiskHigh},
	{"apt-get purge*", argusmodel.RiskHigh},

	{"chmod -R 777*", argusmodel.RiskCritical},
	{"chown -R*", argusmodel.RiskCritical},
	{"rm -rf*", argusmodel.RiskCritical},
}

// ValidationResult is the outcome of validating a command arg-vector.
type ValidationResult struct {
	Allowed bool
	Risk    argusmodel.Risk
	Reason  string
}

// Validate runs the two-stage check from spec.md §4.9: blocklist first
// (returns Allowed=false, Risk=CRITICAL on match), then risk classification
// against the ordered table (default RiskMedium, no match).
func Validate(args []string) ValidationResult {
	joined := strings.Join(args, " ")

	for _, pattern := range blocklist {
		if globMatch(pattern, joined) {
			return ValidationResult{Allowed: false, Risk: argusmodel.RiskCritical, Reason: "blocked by safety filter"}
		}
	}

	if isRM(args) {
		if target, blocked := rmTargetsProtectedPath(args); blocked {
			return ValidationResult{
				Allowed: false,
				Risk:    argusmodel.RiskCritical,
				Reason:  "blocked by safety filter: refuses to remove protected path " + target,
			}
		}
	}

	for _, rp := range riskTable {
		if globMatch(rp.pattern, joined) {
			return ValidationResult{Allowed: true, Risk: rp.risk}
		}
	}

	return ValidationResult{Allowed: true, Risk: argusmodel.RiskMedium}
}

// globMatch is a small "*"-only glob matcher over the whole joined argv
// string. filepath.Match refuses to let "*" cross a path separator, which
// would break patterns like "dd if=*of=/dev/*" that must match across the
// embedded "/" in a device path — so blocklist/riskTable patterns are
// matched with this instead.
func globMatch(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return pattern == s
	}
	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(s[pos:], seg)
		if idx < 0 {
			return false
		}
		if i == 0 && !strings.HasPrefix(pattern, "*") && idx != 0 {
			return false
		}
		pos += idx + len(seg)
	}
	if !strings.HasSuffix(pattern, "*") && segments[len(segments)-1] != "" {
		return strings.HasSuffix(s, segments[len(segments)-1])
	}
	return true
}

func isRM(args []string) bool {
	if len(args) == 0 {
		return false
	}
	base := filepath.Base(args[0])
	return base == "rm"
}

func rmTargetsProtectedPath(args []string) (string, bool) {
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "-") {
			continue
		}
		cleaned := filepath.Clean(a)
		for _, p := range protectedPaths {
			if cleaned == p {
				return cleaned, true
			}
		}
	}
	return "", false
}

// ExecResult is the outcome of running a command, capped and timed.
type ExecResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMS int64
}

// NamespacePrefix, when set, is prepended to argv before spawning — used
// when running containerised with host access (spec.md §4.9).
var NamespacePrefix []string

// Execute re-validates cmd and, if allowed, spawns it as an argv vector
// (never a shell string), waiting up to timeout. On block, returns a
// synthetic {-1, "blocked"} result without spawning anything.
func Execute(ctx context.Context, cmd []string, timeout time.Duration) ExecResult {
	v := Validate(cmd)
	if !v.Allowed {
		return ExecResult{ExitCode: -1, Stderr: "blocked"}
	}

	argv := cmd
	if len(NamespacePrefix) > 0 {
		argv = append(append([]string{}, NamespacePrefix...), cmd...)
	}
	if len(argv) == 0 {
		return ExecResult{ExitCode: -1, Stderr: "empty command"}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	c := exec.CommandContext(runCtx, argv[0], argv[1:]...)

	var stdout, stderr capBuffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	duration := time.Since(start).Milliseconds()

	if runCtx.Err() == context.DeadlineExceeded {
		if c.Process != nil {
			_ = c.Process.Signal(syscall.SIGKILL)
		}
		return ExecResult{ExitCode: -1, Stderr: "timed out", DurationMS: duration}
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return ExecResult{
				ExitCode:   exitErr.ExitCode(),
				Stdout:     stdout.String(),
				Stderr:     stderr.String(),
				DurationMS: duration,
			}
		}
		return ExecResult{ExitCode: -1, Stderr: err.Error(), DurationMS: duration}
	}

	return ExecResult{ExitCode: 0, Stdout: stdout.String(), Stderr: stderr.String(), DurationMS: duration}
}

// capBuffer is an io.Writer that silently stops accepting bytes once it
// holds maxOutputBytes, per spec.md §4.9's stdout/stderr caps.
type capBuffer struct {
	b strings.Builder
}

func (c *capBuffer) Write(p []byte) (int, error) {
	remaining := maxOutputBytes - c.b.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		c.b.Write(p[:remaining])
		return len(p), nil
	}
	c.b.Write(p)
	return len(p), nil
}

func (c *capBuffer) String() string { return c.b.String() }

// FormatExitCode renders an exit code for audit log messages.
func FormatExitCode(code int) string {
	return strconv.Itoa(code)
}
