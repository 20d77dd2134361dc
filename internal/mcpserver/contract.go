package mcpserver

// FilterSyntaxURI identifies the filter syntax resource.
const FilterSyntaxURI = "context-bank://filter-syntax"

// FilterSyntax documents how path_filter values are interpreted.
const FilterSyntax = `# Path filter syntax

A path_filter selects markdown files by their path relative to the
repository root. Paths always use forward slashes. Exactly one rule
applies, checked in this order:

1. **Directory prefix**: the filter ends with ` + "`/`" + `.
   A file matches when its path starts with the filter or contains
   ` + "`/`" + ` followed by the filter.
   ` + "`docs/`" + ` matches ` + "`docs/a.md`" + ` and ` + "`src/docs/b.md`" + `.
2. **Wildcard**: the filter contains ` + "`*`" + `.
   ` + "`*`" + ` matches any run of characters, including ` + "`/`" + `, and
   the pattern must cover the whole path. Every other character is literal.
   ` + "`*.md`" + ` matches every lowercase ` + "`.md`" + ` file;
   ` + "`docs/*/index.md`" + ` matches ` + "`docs/api/index.md`" + `.
3. **Substring**: anything else.
   ` + "`notes`" + ` matches ` + "`notes/today.md`" + ` and ` + "`my-notes.md`" + `.

Matching is case-sensitive. Hidden files and directories (names starting
with ` + "`.`" + `) are never listed, whatever the filter. An empty filter
lists every markdown file.
`
