package harvest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// Unknown is used for the channel of an unmapped file and for lines
// without a recognisable nick.
const Unknown = "UNKNOWN"

type LogFile struct {
	Path    string
	Name    string
	Channel string
	Found   time.Time
}

// ChannelMap resolves a log file's bare name to its channel.
type ChannelMap struct {
	byName map[string]string
}

// ScanDir lists dir once and keeps the regular files whose name matches
// pattern. The first capture group of pattern is the channel name.
func ScanDir(dir string, pattern *regexp.Regexp) ([]LogFile, *ChannelMap, error) {
	if pattern.NumSubexp() < 1 {
		return nil, nil, fmt.Errorf("log file pattern %q has no capture group", pattern)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	found := time.Now()
	m := &ChannelMap{byName: make(map[string]string)}
	var files []LogFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}

		f := LogFile{
			Path:    filepath.Join(dir, entry.Name()),
			Name:    entry.Name(),
			Channel: match[1],
			Found:   found,
		}
		files = append(files, f)
		m.byName[f.Name] = f.Channel
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, m, nil
}

// Lookup returns the channel of the file at path, or Unknown.
func (m *ChannelMap) Lookup(path string) string {
	if ch, ok := m.byName[filepath.Base(path)]; ok {
		return ch
	}
	return Unknown
}

func (m *ChannelMap) Len() int {
	return len(m.byName)
}
