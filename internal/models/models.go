// Package models defines the response payloads of the three operations.
package models

// FileList is the payload of the list operation.
type FileList struct {
	Repository string   `json:"repository"`
	Branch     string   `json:"branch"`
	Files      []string `json:"files"`
	TotalFiles int      `json:"total_files"`
}

// FileContent is the payload of the content operation. Size is in bytes.
type FileContent struct {
	Repository string `json:"repository"`
	Branch     string `json:"branch"`
	FilePath   string `json:"file_path"`
	Content    string `json:"content"`
	Size       int    `json:"size"`
}

// Match is one matching line.
type Match struct {
	LineNumber  int    `json:"line_number"`
	LineContent string `json:"line_content"`
}

// SearchResult is one file of a search response.
//
// The native backend fills Matches and TotalMatches. The remote backend only
// knows which files matched: it fills Repository and URL and never carries
// line numbers.
type SearchResult struct {
	FilePath     string  `json:"file_path"`
	Matches      []Match `json:"matches,omitempty"`
	TotalMatches int     `json:"total_matches,omitempty"`
	Repository   string  `json:"repository,omitempty"`
	URL          string  `json:"url,omitempty"`
}

// SearchResponse is the payload of the search operation.
type SearchResponse struct {
	Repository            string         `json:"repository"`
	Branch                string         `json:"branch"`
	SearchTerm            string         `json:"search_term"`
	CaseSensitive         bool           `json:"case_sensitive"`
	Backend               string         `json:"backend"`
	Results               []SearchResult `json:"results"`
	TotalFilesWithMatches int            `json:"total_files_with_matches"`
	TotalMatches          int            `json:"total_matches"`
}
