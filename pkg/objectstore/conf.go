package objectstore

import (
	"bufio"
	"strings"
)

// Remote is one configured remote in the CLI tool's INI-like config:
// a `[name]` section with a `type = ...` line.
type Remote struct {
	Name string
	Type string
}

// parseConf parses the tool's on-disk config format: sections `[name]`
// each followed by `key = value` lines, of which only `type` is surfaced
// per §4.2/§6. Unknown keys are ignored; this driver only ever needs the
// remote's name and type to enumerate it.
func parseConf(contents string) []Remote {
	var remotes []Remote
	var current *Remote

	scanner := bufio.NewScanner(strings.NewReader(contents))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if current != nil {
				remotes = append(remotes, *current)
			}
			name := strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			current = &Remote{Name: name}
			continue
		}
		if current == nil {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "type" {
			current.Type = value
		}
	}
	if current != nil {
		remotes = append(remotes, *current)
	}
	return remotes
}
