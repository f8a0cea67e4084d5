package database

// URL is one sighting of a URL in a channel. Seen is a unix timestamp.
type URL struct {
	ID      int64  `db:"id"`
	Seen    int64  `db:"seen"`
	Channel string `db:"channel"`
	Nick    string `db:"nick"`
	URL     string `db:"url"`
}

// Meta holds the fetched page metadata for a single url row.
type Meta struct {
	ID          int64  `db:"id"`
	URLID       int64  `db:"url_id"`
	Lang        string `db:"lang"`
	Title       string `db:"title"`
	Description string `db:"description"`
}

// PendingURL is a url row that has no metadata yet.
type PendingURL struct {
	ID   int64  `db:"id"`
	URL  string `db:"url"`
	Seen int64  `db:"seen"`
}

type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// AggregateRow is a group of sightings of the same URL. For the per-channel
// report Channels holds a single entry.
type AggregateRow struct {
	ID        int64
	SeenFirst int64
	SeenLast  int64
	SeenCount int64
	Channels  []string
	Nicks     []string
	URL       string
	Title     string
}

// SearchFilter carries SQL LIKE patterns, already lower-cased. Empty
// fields match everything.
type SearchFilter struct {
	Channel string
	Nick    string
	URL     string
	Title   string
}
