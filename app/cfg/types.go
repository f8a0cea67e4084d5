package cfg

import (
	"time"
)

type Cfg struct {
	// Process flags
	Verbose       bool
	Debug         bool
	Trace         bool
	ConfigFile    string
	ReadHistory   bool
	MetaBacklog   bool
	MetricsListen string

	// Database configuration
	DBDriver string
	DBURL    string

	// Harvester configuration
	IRCLogDir    string
	RegexLog     string
	RegexNick    string
	RegexURL     string
	URLBlacklist []string
	TxSize       int
	RetryCount   int
	RetryDelay   time.Duration

	// Poller configuration
	PollIdle time.Duration
	PollBusy time.Duration

	// Metadata enricher
	UserAgent        string
	MetaTimeout      time.Duration
	MetaInsecureTLS  bool
	MetaBacklogBatch int
	MetaLiveBatch    int

	// Page generator
	TemplateDir      string
	TemplateTimezone map[string]*time.Location
	HTMLDir          string
	URLExpire        time.Duration
	RSSFile          string
	RSSTitle         string
	RSSLink          string

	// Search API
	SearchListen          string
	TplSearchIndex        string
	TplSearchResultHeader string
	TplSearchResultRow    string
	TplSearchResultFooter string
	APIKey                string

	// Application metadata
	Timezone string
	Location *time.Location
	Version  string
}

// fileCfg mirrors the on-disk config file. JSON files are valid YAML, so
// both formats decode through the same struct.
type fileCfg struct {
	IRCLogDir        string            `yaml:"irc_log_dir"`
	DBDriver         string            `yaml:"db_driver"`
	DBURL            string            `yaml:"db_url"`
	TemplateDir      string            `yaml:"template_dir"`
	TemplateTimezone map[string]string `yaml:"template_timezone"`
	HTMLDir          string            `yaml:"html_dir"`
	RegexLog         string            `yaml:"regex_log"`
	RegexNick        string            `yaml:"regex_nick"`
	RegexURL         string            `yaml:"regex_url"`
	URLBlacklist     []string          `yaml:"url_blacklist"`

	TxSize     int           `yaml:"tx_size"`
	RetryCount int           `yaml:"retry_count"`
	RetryDelay *time.Duration `yaml:"retry_delay"`
	PollIdle   time.Duration `yaml:"poll_idle"`
	PollBusy   time.Duration `yaml:"poll_busy"`
	Timezone   string        `yaml:"timezone"`

	UserAgent        string        `yaml:"user_agent"`
	MetaTimeout      time.Duration `yaml:"meta_timeout"`
	MetaInsecureTLS  bool          `yaml:"meta_insecure_tls"`
	MetaBacklogBatch int           `yaml:"meta_backlog_batch"`
	MetaLiveBatch    int           `yaml:"meta_live_batch"`

	URLExpire time.Duration `yaml:"url_expire"`
	RSSFile   string        `yaml:"rss_file"`
	RSSTitle  string        `yaml:"rss_title"`
	RSSLink   string        `yaml:"rss_link"`

	SearchListen          string `yaml:"search_listen"`
	TplSearchIndex        string `yaml:"tpl_search_index"`
	TplSearchResultHeader string `yaml:"tpl_search_result_header"`
	TplSearchResultRow    string `yaml:"tpl_search_result_row"`
	TplSearchResultFooter string `yaml:"tpl_search_result_footer"`
	APIKey                string `yaml:"api_key"`
}
