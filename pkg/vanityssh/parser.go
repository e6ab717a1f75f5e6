package vanityssh

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mahdiidarabi/vanity-ssh/internal/pkg/json"
)

// PatternParser reads raw pattern strings from a source.
type PatternParser interface {
	// ParsePatterns returns the raw patterns in source, in file order.
	ParsePatterns(source string) ([]string, error)
}

// TextParser reads one pattern per line. Blank lines and lines starting with
// '#' are ignored and surrounding whitespace is trimmed.
type TextParser struct{}

// ParsePatterns parses a text pattern file.
func (p *TextParser) ParsePatterns(file string) ([]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()
	return p.Parse(f)
}

// Parse reads patterns from r.
func (p *TextParser) Parse(r io.Reader) ([]string, error) {
	var patterns []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan patterns: %w", err)
	}
	return patterns, nil
}

// JSONParser reads a JSON array whose items are either pattern strings or
// objects carrying the pattern in PatternField.
//
// Expected format:
//
//	["yee", "/^AAAA/", {"pattern": "abc"}]
type JSONParser struct {
	PatternField string // Field name for object items (default: "pattern")
}

// ParsePatterns parses a JSON pattern file.
func (p *JSONParser) ParsePatterns(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.Parse(data)
}

// Parse decodes patterns from data.
func (p *JSONParser) Parse(data []byte) ([]string, error) {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	field := p.PatternField
	if field == "" {
		field = "pattern"
	}

	patterns := make([]string, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			patterns = append(patterns, v)
		case map[string]any:
			raw, ok := v[field]
			if !ok {
				return nil, fmt.Errorf("item %d: missing %s field", i, field)
			}
			s, ok := raw.(string)
			if !ok {
				return nil, fmt.Errorf("item %d: %s field must be a string", i, field)
			}
			patterns = append(patterns, s)
		default:
			return nil, fmt.Errorf("item %d: pattern must be a string or an object", i)
		}
	}
	return patterns, nil
}

// ParsePatternFile reads file with the JSON parser when it has a .json
// extension or starts with '[', and with the text parser otherwise.
func ParsePatternFile(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if strings.HasSuffix(strings.ToLower(file), ".json") || bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return (&JSONParser{}).Parse(data)
	}
	return (&TextParser{}).Parse(bytes.NewReader(data))
}
