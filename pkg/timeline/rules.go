package timeline

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule recognises a line that refers to a screenshot file and returns the
// referenced filename.
type Rule interface {
	Match(line string) (filename string, ok bool)
}

// screenshotMarker is printed by the test executor right before it saves an
// image: `[SCREENSHOT] step_1_login.png`.
const screenshotMarker = "[SCREENSHOT]"

// MarkerRule matches the executor's `[SCREENSHOT] <file>` lines.
type MarkerRule struct{}

// Match implements Rule.
func (MarkerRule) Match(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < len(screenshotMarker) || !strings.EqualFold(trimmed[:len(screenshotMarker)], screenshotMarker) {
		return "", false
	}
	name := strings.TrimSpace(trimmed[len(screenshotMarker):])
	if name == "" {
		return "", false
	}
	return name, true
}

// PatternRule matches lines against a regular expression. The filename is
// taken from the group named "file", or the first group when none is named.
type PatternRule struct {
	Name string
	re   *regexp.Regexp
	idx  int
}

// NewPatternRule compiles pattern into a rule. The pattern must contain at
// least one capturing group.
func NewPatternRule(name, pattern string) (*PatternRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("timeline: rule %q: %w", name, err)
	}
	if re.NumSubexp() == 0 {
		return nil, fmt.Errorf("timeline: rule %q: pattern has no capture group", name)
	}
	idx := re.SubexpIndex("file")
	if idx < 0 {
		idx = 1
	}
	return &PatternRule{Name: name, re: re, idx: idx}, nil
}

// Match implements Rule.
func (p *PatternRule) Match(line string) (string, bool) {
	m := p.re.FindStringSubmatch(line)
	if m == nil || p.idx >= len(m) {
		return "", false
	}
	name := strings.TrimSpace(m[p.idx])
	return name, name != ""
}

type ruleFile struct {
	IncludeMarker *bool `yaml:"include_marker"`
	Rules         []struct {
		Name    string `yaml:"name"`
		Pattern string `yaml:"pattern"`
	} `yaml:"rules"`
}

// ParseRules decodes a YAML rule set. The marker rule is kept first unless
// include_marker is set to false.
//
//	include_marker: true
//	rules:
//	  - name: saved
//	    pattern: '^Screenshot saved: (?P<file>\S+)$'
func ParseRules(data []byte) ([]Rule, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("timeline: decode rules: %w", err)
	}

	var rules []Rule
	if file.IncludeMarker == nil || *file.IncludeMarker {
		rules = append(rules, MarkerRule{})
	}
	for i, r := range file.Rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("timeline: rule %q: pattern is required", name)
		}
		rule, err := NewPatternRule(name, r.Pattern)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if len(rules) == 0 {
		return nil, errors.New("timeline: rule set is empty")
	}
	return rules, nil
}

// LoadRules reads a YAML rule set from path.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRules(data)
}
