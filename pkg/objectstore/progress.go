package objectstore

import "regexp"

// percentPattern matches rclone-style "NN%" progress tokens; speedPattern
// matches a trailing "XX.X <unit>/s" transfer-rate token. Per §9, progress
// parsing is codified once here rather than re-implemented ad hoc at each
// call site; unmatched chunks are no-ops.
var (
	percentPattern = regexp.MustCompile(`(\d{1,3})%`)
	speedPattern   = regexp.MustCompile(`([\d.]+\s?[KMGT]?i?B/s)`)
)

// Progress is one parsed chunk of CLI stdout.
type Progress struct {
	Percent int
	Speed   string
}

// parseProgress extracts the last percent/speed tokens found in text. It
// returns ok=false when neither token is present, signaling the caller to
// treat the chunk as a no-op rather than emit a zeroed Progress.
func parseProgress(text string) (Progress, bool) {
	var p Progress
	found := false

	if m := percentPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		last := m[len(m)-1]
		p.Percent = atoiSafe(last[1])
		found = true
	}

	if m := speedPattern.FindAllString(text, -1); len(m) > 0 {
		p.Speed = m[len(m)-1]
		found = true
	}

	return p, found
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	if n > 100 {
		n = 100
	}
	return n
}
