package api

import (
	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/parser"
)

// FileListResponse is the response of GET /api/files.
type FileListResponse = models.FileList

// SearchResponse is the response of GET /api/search.
type SearchResponse = models.SearchResponse

// FileContentResponse extends the file content payload with what could be
// parsed from the markdown.
type FileContentResponse struct {
	models.FileContent
	Checksum    string                 `json:"checksum" example:"9f86d081884c7d65..." validate:"required"`
	Title       string                 `json:"title,omitempty" example:"Guide"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Headings    []parser.Heading       `json:"headings,omitempty"`
}
