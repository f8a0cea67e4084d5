package api

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
	"github.com/lysyi3m/url-harvest/app/pages"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	cmdSearch       = "search"
)

var searchTerm = regexp.MustCompile(`^[-_\.:/0-9a-zA-Z\?\* ]*$`)

// NewHandler loads the search templates from dir and renders the index
// page once.
func NewHandler(urls database.URLSearcher, meta database.MetaRemover, dir string, names SearchTemplates, loc *time.Location, m *metrics.Metrics) (*Handler, error) {
	h := &Handler{urls: urls, meta: meta, metrics: m}

	index, err := pages.LoadTemplate(dir, names.Index, loc)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := index.Execute(&buf, IndexData{CmdSearch: cmdSearch}); err != nil {
		return nil, fmt.Errorf("failed to render index template: %w", err)
	}
	h.index = buf.Bytes()

	for _, t := range []struct {
		name string
		dst  **template.Template
	}{
		{names.ResultHeader, &h.header},
		{names.ResultRow, &h.row},
		{names.ResultFooter, &h.footer},
	} {
		if *t.dst, err = pages.LoadTemplate(dir, t.name, loc); err != nil {
			return nil, err
		}
	}

	return h, nil
}

func (h *Handler) GetIndex(c *gin.Context) {
	c.Data(http.StatusOK, contentTypeHTML, h.index)
}

func (h *Handler) GetSearch(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.String(http.StatusBadRequest, "Invalid query: %v\n", err)
		return
	}

	for _, term := range []string{q.Chan, q.Nick, q.URL, q.Title} {
		if !searchTerm.MatchString(term) {
			h.metrics.Searched("rejected")
			c.String(http.StatusBadRequest, "*** Illegal characters in query ***\n")
			return
		}
	}

	filter := database.SearchFilter{
		Channel: likePattern(q.Chan),
		Nick:    likePattern(q.Nick),
		URL:     likePattern(q.URL),
		Title:   likePattern(q.Title),
	}
	slog.Info("Search", "chan", filter.Channel, "nick", filter.Nick, "url", filter.URL, "title", filter.Title)

	rows, err := h.urls.Search(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Database error", "operation", "search", "error", err)
		h.metrics.Searched("error")
		c.String(http.StatusInternalServerError, "Query error: %v\n", err)
		return
	}

	page, err := h.renderResults(q, rows)
	if err != nil {
		slog.Error("Search rendering error", "error", err)
		h.metrics.Searched("error")
		c.String(http.StatusInternalServerError, "Template error: %v\n", err)
		return
	}

	h.metrics.Searched("ok")
	c.Header("X-Result-Rows", strconv.Itoa(len(rows)))
	c.Data(http.StatusOK, contentTypeHTML, page)
}

func (h *Handler) renderResults(q SearchQuery, rows []database.AggregateRow) ([]byte, error) {
	data := ResultData{CmdSearch: cmdSearch, Query: q, NRows: len(rows)}

	var buf bytes.Buffer
	if err := h.header.Execute(&buf, data); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := h.row.Execute(&buf, row); err != nil {
			return nil, err
		}
	}
	if err := h.footer.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) GetRemoveURL(c *gin.Context) {
	h.remove(c, "url", h.urls.RemoveURL)
}

func (h *Handler) GetRemoveMeta(c *gin.Context) {
	h.remove(c, "meta", h.meta.RemoveMeta)
}

func (h *Handler) remove(c *gin.Context, kind string, fn func(ctx context.Context, id int64) (int64, error)) {
	id, err := strconv.ParseInt(c.Query("id"), 10, 64)
	if err != nil || id < 1 {
		c.String(http.StatusBadRequest, "Invalid id\n")
		return
	}

	n, err := fn(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "remove_"+kind, "id", id, "error", err)
		c.String(http.StatusInternalServerError, "Query error: %v\n", err)
		return
	}

	h.metrics.Removed(kind)
	slog.Info("Removed", "kind", kind, "id", id, "rows", n)
	c.String(http.StatusOK, "Removed #%d\n", n)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	})
}

// likePattern turns a search term into a lower-cased SQL LIKE pattern:
// "*" and "?" become "%" and "_", and the term matches anywhere.
func likePattern(term string) string {
	term = cases.Lower(language.Und).String(term)
	term = strings.NewReplacer("*", "%", "?", "_").Replace(term)
	return "%" + term + "%"
}
