// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills secrets from the environment when the YAML left
// them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		if val := os.Getenv("LLM_API_KEY"); val != "" {
			cfg.LLM.APIKey = val
		}
	}
	if cfg.Agents.Knowledge.APIKey == "" {
		if val := os.Getenv("KNOWLEDGE_API_KEY"); val != "" {
			cfg.Agents.Knowledge.APIKey = val
		}
	}
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields. The
// keyword defaults are the French production sets; deployments override them
// per locale.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 60000
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.LLM.BackoffBase == 0 {
		cfg.LLM.BackoffBase = 500
	}
	if cfg.LLM.BackoffCap == 0 {
		cfg.LLM.BackoffCap = 8000
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2000
	}

	if cfg.Agents.QueryBuilder.Timeout == 0 {
		cfg.Agents.QueryBuilder.Timeout = 30000
	}
	if cfg.Agents.QueryBuilder.MaxResults == 0 {
		cfg.Agents.QueryBuilder.MaxResults = 100
	}
	if cfg.Agents.Search.Timeout == 0 {
		cfg.Agents.Search.Timeout = 15000
	}
	if cfg.Agents.Search.MaxResults == 0 {
		cfg.Agents.Search.MaxResults = 10
	}
	if cfg.Agents.Search.Index == "" {
		cfg.Agents.Search.Index = "documents"
	}
	if cfg.Agents.Knowledge.Timeout == 0 {
		cfg.Agents.Knowledge.Timeout = 30000
	}
	if cfg.Agents.Knowledge.TopK == 0 {
		cfg.Agents.Knowledge.TopK = 5
	}
	if cfg.Agents.Workflow.RequestTimeout == 0 {
		cfg.Agents.Workflow.RequestTimeout = 30000
	}
	if cfg.Agents.Workflow.ProcessID == "" {
		cfg.Agents.Workflow.ProcessID = "assistant-request"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Routing.Locale == "" {
		cfg.Routing.Locale = "fr"
	}
	if len(cfg.Routing.SearchKeywords) == 0 {
		cfg.Routing.SearchKeywords = []string{
			"cherche", "chercher", "recherche", "trouve", "trouver",
			"ou est", "ou se trouve", "document", "fichier",
			"a propos de", "concernant", "similaire a",
		}
	}
	if len(cfg.Routing.SpecificKeywords) == 0 {
		cfg.Routing.SpecificKeywords = []string{
			"combien", "total", "moyenne", "somme", "liste", "lister",
			"pourcentage", "entre", "depuis", "nombre de",
		}
	}
	if len(cfg.Routing.KnowledgeKeywords) == 0 {
		cfg.Routing.KnowledgeKeywords = []string{
			"comment", "pourquoi", "explique", "expliquer",
			"definir", "definition", "procedure",
		}
	}
	if len(cfg.Routing.SearchIntents) == 0 {
		cfg.Routing.SearchIntents = []string{"recherche", "chercher", "trouver", "localiser"}
	}
	if len(cfg.Routing.DomainCategories) == 0 {
		cfg.Routing.DomainCategories = map[string]string{
			"CHANTIERS": "DATABASE",
			"FINANCES":  "DATABASE",
			"CLIENTS":   "DATABASE",
			"PERSONNEL": "KNOWLEDGE",
		}
	}
	if len(cfg.Routing.KnowledgeDomains) == 0 {
		cfg.Routing.KnowledgeDomains = []string{"PERSONNEL"}
	}
	if cfg.Routing.ReorientThreshold == 0 {
		cfg.Routing.ReorientThreshold = 0.7
	}
	if cfg.Routing.JoinConventionFormat == "" {
		cfg.Routing.JoinConventionFormat = "%s.id = principale.%s_id"
	}
	if cfg.Routing.DefaultFilterType == "" {
		cfg.Routing.DefaultFilterType = "chantier"
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 3600
	}

	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = 50
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields.
func validateConfig(cfg *Config) error {
	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url is required")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	if cfg.Routing.ReorientThreshold < 0 || cfg.Routing.ReorientThreshold > 1 {
		return fmt.Errorf("routing.reorient_threshold must be within [0,1]")
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration.
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
