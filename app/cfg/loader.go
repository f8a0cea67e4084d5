package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	DefaultRegexLog  = `^(#\S*)\.log$`
	DefaultRegexNick = `^[:\d]+\s+[<\*][%@\~\&\+\s]*([^>\s]+)>?\s+`
	DefaultRegexURL  = `(https?://[\w/',":;!%@=\-\.\~\?\#\[\]\{\}\$\&\(\)\*\+]+[^\s'"\)\]\}])`
)

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	Verbose bool `short:"v" long:"verbose" description:"Log informational messages"`
	Debug   bool `short:"d" long:"debug" env:"DEBUG" description:"Enable debug logging"`
	Trace   bool `short:"t" long:"trace" description:"Enable trace logging"`

	ConfigFile    string `short:"c" long:"config-file" env:"URLHARVEST_CONFIG" default:"$HOME/urlharvest/config/urlharvest.yaml" description:"Configuration file (YAML or JSON)"`
	ReadHistory   bool   `short:"r" long:"read-history" description:"Replay existing log file content before live tailing"`
	MetaBacklog   bool   `short:"m" long:"meta-backlog" description:"Process the metadata backlog and exit"`
	MetricsListen string `long:"metrics-listen" env:"METRICS_LISTEN" description:"Address for the Prometheus metrics endpoint (optional)"`
}

// Load parses command-line flags (with environment fallbacks) and the
// configuration file they point to. Extra option groups are registered with
// the flag parser so individual tools can add their own switches. A nil
// config with a nil error means help was shown.
func Load(args []string, extra ...any) (*Cfg, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	var raw rawCfg
	parser := flags.NewParser(&raw, flags.Default)
	for _, group := range extra {
		if _, err := parser.AddGroup("Tool options", "", group); err != nil {
			return nil, fmt.Errorf("failed to register options: %w", err)
		}
	}

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	file, err := loadFile(os.ExpandEnv(raw.ConfigFile))
	if err != nil {
		return nil, err
	}

	return build(raw, file)
}

func loadFile(path string) (*fileCfg, error) {
	slog.Debug("Reading config file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileCfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &file, nil
}

func build(raw rawCfg, file *fileCfg) (*Cfg, error) {
	setDefaults(file)

	c := &Cfg{
		Verbose:       raw.Verbose,
		Debug:         raw.Debug,
		Trace:         raw.Trace,
		ConfigFile:    os.ExpandEnv(raw.ConfigFile),
		ReadHistory:   raw.ReadHistory,
		MetaBacklog:   raw.MetaBacklog,
		MetricsListen: raw.MetricsListen,

		DBDriver: strings.ToLower(file.DBDriver),
		DBURL:    os.ExpandEnv(file.DBURL),

		IRCLogDir:    os.ExpandEnv(file.IRCLogDir),
		RegexLog:     file.RegexLog,
		RegexNick:    file.RegexNick,
		RegexURL:     file.RegexURL,
		URLBlacklist: file.URLBlacklist,
		TxSize:       file.TxSize,
		RetryCount:   file.RetryCount,
		RetryDelay:   *file.RetryDelay,

		PollIdle: file.PollIdle,
		PollBusy: file.PollBusy,

		UserAgent:        file.UserAgent,
		MetaTimeout:      file.MetaTimeout,
		MetaInsecureTLS:  file.MetaInsecureTLS,
		MetaBacklogBatch: file.MetaBacklogBatch,
		MetaLiveBatch:    file.MetaLiveBatch,

		TemplateDir: os.ExpandEnv(file.TemplateDir),
		HTMLDir:     os.ExpandEnv(file.HTMLDir),
		URLExpire:   file.URLExpire,
		RSSFile:     os.ExpandEnv(file.RSSFile),
		RSSTitle:    file.RSSTitle,
		RSSLink:     file.RSSLink,

		SearchListen:          file.SearchListen,
		TplSearchIndex:        file.TplSearchIndex,
		TplSearchResultHeader: file.TplSearchResultHeader,
		TplSearchResultRow:    file.TplSearchResultRow,
		TplSearchResultFooter: file.TplSearchResultFooter,
		APIKey:                file.APIKey,

		Timezone: file.Timezone,
		Version:  GetVersion(),
	}

	if err := validate(c); err != nil {
		return nil, err
	}

	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc

	c.TemplateTimezone = make(map[string]*time.Location, len(file.TemplateTimezone))
	for name, tz := range file.TemplateTimezone {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("error parsing template_timezone %q: %q - %w", name, tz, err)
		}
		c.TemplateTimezone[name] = loc
	}

	return c, nil
}

func setDefaults(file *fileCfg) {
	file.DBDriver = cmp.Or(file.DBDriver, "sqlite")
	file.DBURL = cmp.Or(file.DBURL, "$HOME/urlharvest/data/urllog.db")
	file.RegexLog = cmp.Or(file.RegexLog, DefaultRegexLog)
	file.RegexNick = cmp.Or(file.RegexNick, DefaultRegexNick)
	file.RegexURL = cmp.Or(file.RegexURL, DefaultRegexURL)
	file.TxSize = cmp.Or(file.TxSize, 1024)
	file.RetryCount = cmp.Or(file.RetryCount, 5)
	if file.RetryDelay == nil {
		d := time.Second
		file.RetryDelay = &d
	}
	file.PollIdle = cmp.Or(file.PollIdle, 10*time.Second)
	file.PollBusy = cmp.Or(file.PollBusy, 2*time.Second)
	file.UserAgent = cmp.Or(file.UserAgent, "urlharvest/"+GetVersion())
	file.MetaTimeout = cmp.Or(file.MetaTimeout, 10*time.Second)
	file.MetaBacklogBatch = cmp.Or(file.MetaBacklogBatch, 10)
	file.MetaLiveBatch = cmp.Or(file.MetaLiveBatch, 42)
	file.URLExpire = cmp.Or(file.URLExpire, 7*24*time.Hour)
	file.RSSTitle = cmp.Or(file.RSSTitle, "IRC URL log")
	file.SearchListen = cmp.Or(file.SearchListen, "127.0.0.1:8080")
	file.TplSearchIndex = cmp.Or(file.TplSearchIndex, "search_index.html.tmpl")
	file.TplSearchResultHeader = cmp.Or(file.TplSearchResultHeader, "search_result_header.html.tmpl")
	file.TplSearchResultRow = cmp.Or(file.TplSearchResultRow, "search_result_row.html.tmpl")
	file.TplSearchResultFooter = cmp.Or(file.TplSearchResultFooter, "search_result_footer.html.tmpl")
}

func validate(c *Cfg) error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q (want sqlite or postgres)", c.DBDriver)
	}
	if c.TxSize < 1 {
		return fmt.Errorf("tx_size must be positive")
	}
	if c.RetryCount < 1 {
		return fmt.Errorf("retry_count must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be non-negative")
	}
	if c.PollIdle < 0 || c.PollBusy < 0 {
		return fmt.Errorf("poll intervals must be non-negative")
	}
	return nil
}

func loadLocation(timezone string) (*time.Location, error) {
	if timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(timezone)
}
