// Package search finds literal text in markdown files, either by scanning a
// materialized workspace or by asking a remote code-search API.
package search

import (
	"regexp"
	"strings"

	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/storage"
)

// Compile returns a matcher for pattern taken literally.
func Compile(pattern string, caseSensitive bool) *regexp.Regexp {
	expr := regexp.QuoteMeta(pattern)
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	return regexp.MustCompile(expr)
}

// Scan searches files, in order, for lines containing pattern. Files without
// a match are omitted. Line numbers are 1-based and line content is trimmed.
func Scan(store storage.Provider, files []string, pattern string, caseSensitive bool) ([]models.SearchResult, error) {
	re := Compile(pattern, caseSensitive)
	results := []models.SearchResult{}
	for _, path := range files {
		data, err := store.Read(path)
		if err != nil {
			return nil, err
		}
		matches := ScanText(string(data), re)
		if len(matches) == 0 {
			continue
		}
		results = append(results, models.SearchResult{
			FilePath:     path,
			Matches:      matches,
			TotalMatches: len(matches),
		})
	}
	return results, nil
}

// ScanText returns every line of text matched by re.
func ScanText(text string, re *regexp.Regexp) []models.Match {
	var out []models.Match
	for i, line := range strings.Split(text, "\n") {
		if re.MatchString(line) {
			out = append(out, models.Match{
				LineNumber:  i + 1,
				LineContent: strings.TrimSpace(line),
			})
		}
	}
	return out
}

// Totals returns the number of files and the sum of their match counts.
func Totals(results []models.SearchResult) (files, matches int) {
	for _, r := range results {
		matches += r.TotalMatches
	}
	return len(results), matches
}
