package agent

import (
	"regexp"
)

// Signal is a control marker an agent prints to report it gave up.
type Signal int

const (
	// SignalNone indicates no signal was detected in the output.
	SignalNone Signal = iota

	// SignalEject indicates the agent had to stop, e.g. for a large install.
	SignalEject

	// SignalBlocked indicates the agent is blocked (missing credentials, unclear requirements).
	SignalBlocked
)

func (s Signal) String() string {
	switch s {
	case SignalEject:
		return "EJECT"
	case SignalBlocked:
		return "BLOCKED"
	default:
		return "NONE"
	}
}

// Signals are enclosed in <promise>...</promise> tags.
var (
	ejectPattern   = regexp.MustCompile(`<promise>EJECT:\s*(.+?)</promise>`)
	blockedPattern = regexp.MustCompile(`<promise>BLOCKED:\s*(.+?)</promise>`)
)

// ParseSignal scans agent output for a control signal and its reason.
// EJECT takes precedence over BLOCKED.
func ParseSignal(output string) (Signal, string) {
	if m := ejectPattern.FindStringSubmatch(output); len(m) > 1 {
		return SignalEject, m[1]
	}
	if m := blockedPattern.FindStringSubmatch(output); len(m) > 1 {
		return SignalBlocked, m[1]
	}
	return SignalNone, ""
}
