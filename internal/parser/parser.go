// Package parser extracts YAML frontmatter, a title and a heading outline
// from markdown content.
package parser

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Heading is one ATX heading of the body.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Line  int    `json:"line"`
}

// Document holds what Parse could learn about a markdown file.
type Document struct {
	Frontmatter map[string]interface{}
	Body        string
	// BodyLine is the 1-based line of the file on which Body starts.
	BodyLine int
	Title    string
	Headings []Heading
}

// Parse splits frontmatter from the body and derives the title and outline.
// Malformed frontmatter is not an error: the whole input is then body.
func Parse(data []byte) *Document {
	fm, body, offset := splitFrontmatter(data)
	headings := outline(body, offset)
	return &Document{
		Frontmatter: fm,
		Body:        body,
		BodyLine:    offset + 1,
		Title:       deriveTitle(fm, headings),
		Headings:    headings,
	}
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the body. offset is the number of lines preceding the body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, int) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	lead := bytes.Count(data[:len(data)-len(trimmed)], []byte("\n"))

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), 0
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), 0
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := bytes.TrimLeft(afterDelim, "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), 0
	}

	consumed := len(data) - len(body)
	return fm, string(body), lead + bytes.Count(data[len(data)-len(trimmed):consumed], []byte("\n"))
}

// outline collects ATX headings outside fenced code blocks. offset is added
// to every line number.
func outline(body string, offset int) []Heading {
	var out []Heading
	fenced := false
	for i, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			fenced = !fenced
			continue
		}
		if fenced {
			continue
		}
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		if level == 0 || level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
			continue
		}
		text := strings.TrimSpace(strings.TrimRight(trimmed[level:], "#"))
		if text == "" {
			continue
		}
		out = append(out, Heading{Level: level, Text: text, Line: offset + i + 1})
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, headings []Heading) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}
