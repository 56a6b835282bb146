package monitor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	portPattern  = regexp.MustCompile(`:(\d+)/`)
	tokenPattern = regexp.MustCompile(`token=([a-zA-Z0-9]+)`)
)

// NotebookURL accepts the first line announcing an http(s) URL, as printed by
// jupyter lab once it is serving. Port and Token are left zero when the line
// does not carry them.
func NotebookURL(line string) (Match, bool) {
	start := strings.Index(line, "http://")
	if start < 0 {
		start = strings.Index(line, "https://")
	}
	if start < 0 {
		return Match{}, false
	}

	url := line[start:]
	if end := strings.IndexAny(url, " \t"); end >= 0 {
		url = url[:end]
	}

	match := Match{URL: url}
	if m := portPattern.FindStringSubmatch(line); m != nil {
		match.Port, _ = strconv.Atoi(m[1])
	}
	if m := tokenPattern.FindStringSubmatch(line); m != nil {
		match.Token = m[1]
	}
	return match, true
}

// ContainsAny returns an extractor accepting lines that contain any of
// substrs, ignoring case.
func ContainsAny(substrs ...string) Extractor {
	lowered := make([]string, len(substrs))
	for i, sub := range substrs {
		lowered[i] = strings.ToLower(sub)
	}
	return func(line string) (Match, bool) {
		line = strings.ToLower(line)
		for _, sub := range lowered {
			if strings.Contains(line, sub) {
				return Match{}, true
			}
		}
		return Match{}, false
	}
}
