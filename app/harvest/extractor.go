package harvest

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/lysyi3m/url-harvest/app/database"
	"github.com/lysyi3m/url-harvest/app/metrics"
)

// Event is one URL mention. Events are not deduplicated.
type Event struct {
	Time    time.Time
	Channel string
	Nick    string
	URL     string
}

func (e Event) Record() database.URL {
	return database.URL{
		Seen:    e.Time.Unix(),
		Channel: e.Channel,
		Nick:    e.Nick,
		URL:     e.URL,
	}
}

type Extractor struct {
	nick      *regexp.Regexp
	url       *regexp.Regexp
	blacklist []string
	metrics   *metrics.Metrics
}

// NewExtractor compiles the nick and URL patterns. Both need at least one
// capture group; the first group is the extracted value.
func NewExtractor(nickPattern, urlPattern string, blacklist []string, m *metrics.Metrics) (*Extractor, error) {
	nick, err := compileCapturing("regex_nick", nickPattern)
	if err != nil {
		return nil, err
	}
	url, err := compileCapturing("regex_url", urlPattern)
	if err != nil {
		return nil, err
	}

	return &Extractor{nick: nick, url: url, blacklist: blacklist, metrics: m}, nil
}

// Run returns one event per non-blacklisted URL on line.
func (x *Extractor) Run(line, channel string, ts time.Time) []Event {
	matches := x.url.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}

	nick := Unknown
	if m := x.nick.FindStringSubmatch(line); m != nil && m[1] != "" {
		nick = m[1]
	}

	events := make([]Event, 0, len(matches))
	for _, m := range matches {
		url := m[1]
		if url == "" {
			continue
		}
		x.metrics.URLFound()

		if prefix, blocked := x.blacklisted(url); blocked {
			slog.Debug("Blacklisted URL", "url", url, "prefix", prefix)
			x.metrics.URLBlacklisted()
			continue
		}

		slog.Info("Detected url", "channel", channel, "nick", nick, "url", url)
		events = append(events, Event{Time: ts, Channel: channel, Nick: nick, URL: url})
	}

	return events
}

func (x *Extractor) blacklisted(url string) (string, bool) {
	for _, prefix := range x.blacklist {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return prefix, true
		}
	}
	return "", false
}

func compileCapturing(name, pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("%s %q has no capture group", name, pattern)
	}
	return re, nil
}
