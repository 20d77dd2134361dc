package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/starford/context-bank/internal/apperr"
	"github.com/starford/context-bank/internal/checksum"
	"github.com/starford/context-bank/internal/contextbank"
	"github.com/starford/context-bank/internal/models"
	"github.com/starford/context-bank/internal/parser"
)

// Service is the set of operations the handlers delegate to.
// *contextbank.Service satisfies it.
type Service interface {
	ListMarkdownFiles(ctx context.Context, req contextbank.ListRequest) (*models.FileList, error)
	GetFileContent(ctx context.Context, req contextbank.ContentRequest) (*models.FileContent, error)
	SearchMarkdownContent(ctx context.Context, req contextbank.SearchRequest) (*models.SearchResponse, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// ListFiles handles GET /api/files.
//
//	@Summary		List markdown files of a repository branch
//	@Tags			files
//	@Produce		json
//	@Param			repository_url	query		string	false	"Repository URL"
//	@Param			branch			query		string	false	"Branch"	default(main)
//	@Param			path_filter		query		string	false	"Path filter"
//	@Param			access_token	query		string	false	"Access token"
//	@Success		200				{object}	FileListResponse
//	@Failure		400				{object}	errResponse
//	@Failure		502				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.ListMarkdownFiles(r.Context(), contextbank.ListRequest{
		RepositoryURL: q.Get("repository_url"),
		Branch:        q.Get("branch"),
		PathFilter:    q.Get("path_filter"),
		AccessToken:   q.Get("access_token"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetContent handles GET /api/files/content.
//
//	@Summary		Get the content of one markdown file
//	@Tags			files
//	@Produce		json
//	@Param			file_path		query		string	true	"File path relative to the repository root"
//	@Param			repository_url	query		string	false	"Repository URL"
//	@Param			branch			query		string	false	"Branch"	default(main)
//	@Param			access_token	query		string	false	"Access token"
//	@Success		200				{object}	FileContentResponse
//	@Success		304
//	@Failure		400				{object}	errResponse
//	@Failure		404				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/content [get]
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.svc.GetFileContent(r.Context(), contextbank.ContentRequest{
		RepositoryURL: q.Get("repository_url"),
		Branch:        q.Get("branch"),
		FilePath:      q.Get("file_path"),
		AccessToken:   q.Get("access_token"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	data := []byte(res.Content)
	etag := checksum.ETag(data)
	w.Header().Set("ETag", etag)
	if checksum.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	doc := parser.Parse(data)
	writeJSON(w, http.StatusOK, FileContentResponse{
		FileContent: *res,
		Checksum:    checksum.Sum(data),
		Title:       doc.Title,
		Frontmatter: doc.Frontmatter,
		Headings:    doc.Headings,
	})
}

// Search handles GET /api/search.
//
//	@Summary		Search markdown files for a literal term
//	@Tags			search
//	@Produce		json
//	@Param			search_term		query		string	true	"Literal search term"
//	@Param			case_sensitive	query		bool	false	"Match case"	default(false)
//	@Param			repository_url	query		string	false	"Repository URL"
//	@Param			branch			query		string	false	"Branch"	default(main)
//	@Param			access_token	query		string	false	"Access token"
//	@Success		200				{object}	SearchResponse
//	@Failure		400				{object}	errResponse
//	@Failure		502				{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	caseSensitive := false
	if raw := q.Get("case_sensitive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, apperr.New(apperr.ErrValidation, "case_sensitive: must be a boolean"))
			return
		}
		caseSensitive = v
	}
	res, err := h.svc.SearchMarkdownContent(r.Context(), contextbank.SearchRequest{
		RepositoryURL: q.Get("repository_url"),
		Branch:        q.Get("branch"),
		SearchTerm:    q.Get("search_term"),
		CaseSensitive: caseSensitive,
		AccessToken:   q.Get("access_token"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
