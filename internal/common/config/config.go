// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Server        ServerConfig       `mapstructure:"server"`
	LLM           LLMConfig          `mapstructure:"llm"`
	Agents        AgentsConfig       `mapstructure:"agents"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Routing       RoutingConfig      `mapstructure:"routing"`
	Cache         CacheConfig        `mapstructure:"cache"`
	History       HistoryConfig      `mapstructure:"history"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// LLMConfig holds the model gateway settings.
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	BackoffBase int     `mapstructure:"backoff_base"` // milliseconds
	BackoffCap  int     `mapstructure:"backoff_cap"`  // milliseconds
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// AgentsConfig holds the per-agent dispatch settings.
type AgentsConfig struct {
	QueryBuilder QueryBuilderAgentConfig `mapstructure:"querybuilder"`
	Search       SearchAgentConfig       `mapstructure:"search"`
	Knowledge    KnowledgeAgentConfig    `mapstructure:"knowledge"`
	Workflow     WorkflowAgentConfig     `mapstructure:"workflow"`
}

type QueryBuilderAgentConfig struct {
	Timeout    int `mapstructure:"timeout"` // milliseconds
	MaxResults int `mapstructure:"max_results"`
}

type SearchAgentConfig struct {
	Index      string `mapstructure:"index"`
	Timeout    int    `mapstructure:"timeout"` // milliseconds
	MaxResults int    `mapstructure:"max_results"`
}

type KnowledgeAgentConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
	TopK    int    `mapstructure:"top_k"`
}

type WorkflowAgentConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	ProcessID      string `mapstructure:"process_id"`
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RoutingConfig externalizes the classification keyword sets and the
// reorientation/join heuristics. The matching algorithm (case- and
// accent-insensitive substring containment) lives in the classify package;
// only the data is configuration.
type RoutingConfig struct {
	Locale               string            `mapstructure:"locale"`
	SearchKeywords       []string          `mapstructure:"search_keywords"`
	SpecificKeywords     []string          `mapstructure:"specific_keywords"`
	KnowledgeKeywords    []string          `mapstructure:"knowledge_keywords"`
	SearchIntents        []string          `mapstructure:"search_intents"`
	DomainCategories     map[string]string `mapstructure:"domain_categories"`
	KnowledgeDomains     []string          `mapstructure:"knowledge_domains"`
	ReorientThreshold    float64           `mapstructure:"reorient_threshold"`
	JoinConventionFormat string            `mapstructure:"join_convention_format"`
	DefaultFilterType    string            `mapstructure:"default_filter_type"`
}

type CacheConfig struct {
	TTL         int  `mapstructure:"ttl"` // seconds
	CacheRouted bool `mapstructure:"cache_routed"`
}

type HistoryConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	MaxTurns int  `mapstructure:"max_turns"`
}

// NotificationConfig holds settings for the urgent-question alert hook.
type NotificationConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
