package meta

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// Page is the metadata extracted from an HTML document. Missing values are
// empty.
type Page struct {
	Title       string
	Lang        string
	Description string
}

// ParsePage reads title, language and description from the document head,
// falling back to readability when the head has no usable title.
func ParsePage(data []byte, pageURL string) (Page, error) {
	if len(data) == 0 {
		return Page{}, fmt.Errorf("HTML data is empty")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var p Page
	p.Title = collapse(doc.Find("title").First().Text())
	p.Lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	var ogTitle, ogDesc, ogLocale, httpLang string
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content := collapse(s.AttrOr("content", ""))
		name := strings.ToLower(s.AttrOr("name", s.AttrOr("property", "")))
		switch name {
		case "description":
			if p.Description == "" {
				p.Description = content
			}
		case "og:title":
			ogTitle = content
		case "og:description":
			ogDesc = content
		case "og:locale":
			ogLocale = content
		}
		if strings.EqualFold(s.AttrOr("http-equiv", ""), "content-language") {
			httpLang = content
		}
	})

	if p.Title == "" {
		p.Title = ogTitle
	}
	if p.Description == "" {
		p.Description = ogDesc
	}
	if p.Lang == "" {
		p.Lang = firstNonEmpty(httpLang, ogLocale)
	}

	if p.Title == "" {
		readabilityFallback(data, pageURL, &p)
	}

	return p, nil
}

func readabilityFallback(data []byte, pageURL string, p *Page) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return
	}

	article, err := readability.FromReader(bytes.NewReader(data), parsedURL)
	if err != nil {
		slog.Debug("Readability fallback failed", "url", pageURL, "error", err)
		return
	}

	p.Title = collapse(article.Title)
	if p.Description == "" {
		p.Description = collapse(article.Excerpt)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
