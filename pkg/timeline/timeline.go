package timeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates timeline entries.
type Kind string

const (
	KindLog        Kind = "log"
	KindScreenshot Kind = "screenshot"
)

// Valid reports whether k is one of the known entry kinds.
func (k Kind) Valid() bool {
	return k == KindLog || k == KindScreenshot
}

// Entry is one step of the execution narrative. Content is free text for log
// entries and a filename reference for screenshot entries.
type Entry struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}

// UnmarshalJSON rejects entries whose kind is not log or screenshot.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind    Kind   `json:"kind"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Kind.Valid() {
		return fmt.Errorf("timeline: unknown entry kind %q", raw.Kind)
	}
	e.Kind = raw.Kind
	e.Content = raw.Content
	return nil
}

// Timeline is the ordered sequence of entries derived from one run.
type Timeline []Entry

// Counts returns the number of log and screenshot entries.
func (t Timeline) Counts() (logs, screenshots int) {
	for _, e := range t {
		switch e.Kind {
		case KindLog:
			logs++
		case KindScreenshot:
			screenshots++
		}
	}
	return logs, screenshots
}

// Extractor classifies stdout lines using an ordered list of rules. The first
// rule that matches a line turns it into a screenshot entry.
type Extractor struct {
	rules []Rule
}

// New returns an Extractor using rules, or the default marker rule when none
// are given.
func New(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = []Rule{MarkerRule{}}
	}
	return &Extractor{rules: rules}
}

var defaultExtractor = New()

// Extract parses stdout with the default marker rule.
func Extract(stdout string) Timeline {
	return defaultExtractor.Extract(stdout)
}

// Extract maps every non-blank line of stdout to exactly one entry,
// preserving input order.
func (x *Extractor) Extract(stdout string) Timeline {
	if stdout == "" {
		return Timeline{}
	}

	lines := strings.Split(stdout, "\n")
	out := make(Timeline, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, x.classify(line))
	}
	return out
}

func (x *Extractor) classify(line string) Entry {
	for _, rule := range x.rules {
		if rule == nil {
			continue
		}
		if name, ok := rule.Match(line); ok && strings.TrimSpace(name) != "" {
			return Entry{Kind: KindScreenshot, Content: strings.TrimSpace(name)}
		}
	}
	return Entry{Kind: KindLog, Content: strings.TrimRight(line, " \t")}
}
