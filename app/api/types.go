package api

import (
	"html/template"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
)

// SearchTemplates names the search page templates inside the template
// directory.
type SearchTemplates struct {
	Index        string
	ResultHeader string
	ResultRow    string
	ResultFooter string
}

// SearchQuery holds the raw query terms as the user typed them.
type SearchQuery struct {
	Chan  string `form:"chan"`
	Nick  string `form:"nick"`
	URL   string `form:"url"`
	Title string `form:"title"`
}

// IndexData is passed to the index template.
type IndexData struct {
	CmdSearch string
}

// ResultData is passed to the result header and footer templates.
type ResultData struct {
	CmdSearch string
	Query     SearchQuery
	NRows     int
}

type Handler struct {
	urls    database.URLSearcher
	meta    database.MetaRemover
	index   []byte
	header  *template.Template
	row     *template.Template
	footer  *template.Template
	metrics *metrics.Metrics
}
