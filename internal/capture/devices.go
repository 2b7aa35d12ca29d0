// ABOUTME: Capture device candidate selection policy
// ABOUTME: Prefers an explicit index, then output-capable devices, then monitor-named inputs
package capture

import "strings"

// monitorHints mark device names that expose a system-audio mix as an
// input (PulseAudio monitors, Windows Stereo Mix and friends).
var monitorHints = []string{"monitor", "stereo mix", "stereo", "loopback", "what u hear"}

// Candidates orders devices for open attempts. An explicit index (>= 0)
// pins the list to that single device; otherwise devices exposing output
// channels come first (their input side is the loopback/monitor path),
// followed by devices whose name suggests a monitor source. Each device
// appears at most once.
func Candidates(devices []Device, explicitIndex int) []Device {
	if explicitIndex >= 0 {
		for _, d := range devices {
			if d.Index == explicitIndex {
				return []Device{d}
			}
		}
		return nil
	}

	var out []Device
	seen := make(map[int]bool)

	for _, d := range devices {
		if d.MaxOutputChannels > 0 {
			out = append(out, d)
			seen[d.Index] = true
		}
	}
	for _, d := range devices {
		if !seen[d.Index] && looksLikeMonitor(d.Name) {
			out = append(out, d)
			seen[d.Index] = true
		}
	}

	return out
}

func looksLikeMonitor(name string) bool {
	n := strings.ToLower(name)
	for _, hint := range monitorHints {
		if strings.Contains(n, hint) {
			return true
		}
	}
	return false
}
