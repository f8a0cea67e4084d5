package pages

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/url-harvest/app/database"
)

type RSSConfig struct {
	File  string
	Title string
	Link  string
}

// RSS renders the unique URL rows as an RSS 2.0 channel.
func RSS(c RSSConfig, version string, rows []database.AggregateRow, built time.Time) []byte {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	writeElement(&buf, "title", c.Title, 4)
	writeElement(&buf, "link", c.Link, 4)
	writeElement(&buf, "description", fmt.Sprintf("URLs seen on IRC, %d in total", len(rows)), 4)
	if c.Link != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(c.Link)))
	}

	lastBuildDate := built
	if len(rows) > 0 {
		lastBuildDate = time.Unix(rows[0].SeenLast, 0)
	}
	writeElement(&buf, "lastBuildDate", lastBuildDate.In(built.Location()).Format(time.RFC1123Z), 4)
	writeElement(&buf, "generator", "urlharvest/"+version, 4)

	for _, row := range rows {
		writeItem(&buf, row, built.Location())
	}

	buf.WriteString("  </channel>\n</rss>\n")
	return buf.Bytes()
}

func writeItem(buf *bytes.Buffer, row database.AggregateRow, loc *time.Location) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", isURL(row.URL)))
	xml.EscapeText(buf, []byte(row.URL))
	buf.WriteString("</guid>\n")

	title := row.Title
	if title == "" || strings.HasPrefix(title, "(") {
		title = row.URL
	}
	writeElement(buf, "title", title, 6)
	writeElement(buf, "link", row.URL, 6)
	writeElement(buf, "description", fmt.Sprintf("Seen %d times by %s on %s",
		row.SeenCount, strings.Join(row.Nicks, ", "), strings.Join(row.Channels, ", ")), 6)
	writeElement(buf, "pubDate", time.Unix(row.SeenLast, 0).In(loc).Format(time.RFC1123Z), 6)

	for _, channel := range row.Channels {
		writeElement(buf, "category", channel, 6)
	}

	buf.WriteString("    </item>\n")
}

func writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
