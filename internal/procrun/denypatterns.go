package procrun

import "regexp"

// denyPatterns is an always-on, pre-allowlist defense-in-depth gate: a
// command matching one of these fails POLICY_BLOCKED regardless of
// allowlist membership, since an allowlisted interpreter's arguments can
// still be dangerous (§12.2). Trimmed and generalized from the kind of
// denylist a shell-exec tool carries alongside container hardening.
var denyPatterns = []*regexp.Regexp{
	// Destructive file operations.
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\bdd\s+if=`),
	regexp.MustCompile(`\b(mkfs|diskpart)\b|\bformat\s`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb

	// Data exfiltration / reverse shells.
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`/dev/tcp/`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bmkfifo\b`),

	// Privilege escalation.
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bsu\s+-`),
	regexp.MustCompile(`\b(mount|umount)\b`),

	// Environment variable injection.
	regexp.MustCompile(`\bLD_PRELOAD\s*=`),
	regexp.MustCompile(`\bBASH_ENV\s*=`),

	// Container escape / host introspection.
	regexp.MustCompile(`/var/run/docker\.sock|docker\.(sock|socket)`),
	regexp.MustCompile(`/proc/sys/(kernel|fs|net)/`),
	regexp.MustCompile(`/sys/(kernel|fs|class|devices)/`),

	// Process manipulation.
	regexp.MustCompile(`\bkill\s+-9\s`),
	regexp.MustCompile(`\b(killall|pkill)\b`),

	// Environment dumping.
	regexp.MustCompile(`^\s*env\s*$`),
	regexp.MustCompile(`^\s*env\s*\|`),
	regexp.MustCompile(`\bprintenv\b`),
}

func matchDenyPattern(command string) (*regexp.Regexp, bool) {
	for _, p := range denyPatterns {
		if p.MatchString(command) {
			return p, true
		}
	}
	return nil, false
}
