package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ParticipantConfig describes one crew member.
type ParticipantConfig struct {
	Name    string `json:"name"`
	Persona string `json:"persona"`
}

type Config struct {
	ProjectDir string `json:"project_dir"`
	ResultsDir string `json:"results_dir"`
	DataDir    string `json:"data_dir"`
	DBPath     string `json:"db_path"`

	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMBaseURL  string `json:"llm_base_url,omitempty"`
	MaxTokens   int    `json:"max_tokens"`

	// BackendURL points at the portfolio service that serves
	// participant track records. Empty disables performance weighting.
	BackendURL string `json:"backend_url"`

	DeliberationRounds int     `json:"deliberation_rounds"`
	ConsensusThreshold float64 `json:"consensus_threshold"`
	OverrideMargin     float64 `json:"override_margin"`
	QualityOverrideBar float64 `json:"quality_override_bar"`
	CallTimeoutSeconds int     `json:"call_timeout_seconds"`
	MediatorEnabled    bool    `json:"mediator_enabled"`
	DevilsAdvocate     bool    `json:"devils_advocate"`

	// BuyingPower is the cash pool used to size orders.
	BuyingPower float64 `json:"buying_power"`

	// WSListenAddr serves the live progress WebSocket when non-empty.
	WSListenAddr string `json:"ws_listen_addr,omitempty"`

	Participants []ParticipantConfig `json:"participants"`

	Debug bool `json:"debug"`

	// AI Model API Keys
	DeepSeekAPIKey string `json:"deepseek_api_key,omitempty"`
	OpenAIAPIKey   string `json:"openai_api_key,omitempty"`
}

func defaultParticipants() []ParticipantConfig {
	return []ParticipantConfig{
		{Name: "warren", Persona: "You are a patient value investor. You buy quality businesses below intrinsic value and distrust hype."},
		{Name: "cathie", Persona: "You are a growth investor focused on disruptive innovation. You accept volatility for asymmetric upside."},
		{Name: "quant", Persona: "You are a systematic trader. You trust indicators, trends and statistics over narratives."},
	}
}

func DefaultConfig() *Config {
	currentDir, _ := os.Getwd()
	cfg := DefaultConfigWithRoot(currentDir)

	// Load environment variables from .env file
	_ = godotenv.Load()
	cfg.loadFromEnv()

	return cfg
}

// DefaultConfigWithRoot builds the defaults rooted at the given
// directory without touching the environment.
func DefaultConfigWithRoot(root string) *Config {
	return &Config{
		ProjectDir: root,
		ResultsDir: filepath.Join(root, "results"),
		DataDir:    filepath.Join(root, "data"),
		DBPath:     filepath.Join(root, "data", "crew.db"),

		LLMProvider: "deepseek",
		LLMModel:    "deepseek-chat",
		MaxTokens:   2048,

		DeliberationRounds: 2,
		ConsensusThreshold: 66,
		OverrideMargin:     10,
		QualityOverrideBar: 75,
		CallTimeoutSeconds: 120,
		MediatorEnabled:    true,
		DevilsAdvocate:     true,

		BuyingPower: 100000,

		Participants: defaultParticipants(),
	}
}

func (c *Config) loadFromEnv() {
	if val := os.Getenv("PROJECT_DIR"); val != "" {
		c.ProjectDir = val
	}
	if val := os.Getenv("RESULTS_DIR"); val != "" {
		c.ResultsDir = val
	}
	if val := os.Getenv("DATA_DIR"); val != "" {
		c.DataDir = val
	}
	if val := os.Getenv("CREWGO_DB_PATH"); val != "" {
		c.DBPath = val
	}

	if val := os.Getenv("LLM_PROVIDER"); val != "" {
		c.LLMProvider = val
	}
	if val := os.Getenv("LLM_MODEL"); val != "" {
		c.LLMModel = val
	}
	if val := os.Getenv("LLM_BASE_URL"); val != "" {
		c.LLMBaseURL = val
	}
	if val := os.Getenv("MAX_TOKENS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.MaxTokens = v
		}
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		c.BackendURL = val
	}

	if val := os.Getenv("DELIBERATION_ROUNDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.DeliberationRounds = v
		}
	}
	if val := os.Getenv("CONSENSUS_THRESHOLD"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.ConsensusThreshold = v
		}
	}
	if val := os.Getenv("OVERRIDE_MARGIN"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.OverrideMargin = v
		}
	}
	if val := os.Getenv("QUALITY_OVERRIDE_BAR"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.QualityOverrideBar = v
		}
	}
	if val := os.Getenv("CALL_TIMEOUT_SECONDS"); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			c.CallTimeoutSeconds = v
		}
	}
	if val := os.Getenv("MEDIATOR_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.MediatorEnabled = enabled
		}
	}
	if val := os.Getenv("DEVILS_ADVOCATE"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.DevilsAdvocate = enabled
		}
	}

	if val := os.Getenv("BUYING_POWER"); val != "" {
		if v, err := strconv.ParseFloat(val, 64); err == nil {
			c.BuyingPower = v
		}
	}
	if val := os.Getenv("WS_LISTEN_ADDR"); val != "" {
		c.WSListenAddr = val
	}

	if val := os.Getenv("CREWGO_DEBUG"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			c.Debug = enabled
		}
	}

	if val := os.Getenv("DEEPSEEK_API_KEY"); val != "" {
		c.DeepSeekAPIKey = val
	}
	if val := os.Getenv("OPENAI_API_KEY"); val != "" {
		c.OpenAIAPIKey = val
	}
}

// Validate rejects configs a session could not run with.
func (c *Config) Validate() error {
	if c.DeliberationRounds < 1 {
		return fmt.Errorf("deliberation_rounds must be at least 1, got %d", c.DeliberationRounds)
	}
	if c.ConsensusThreshold <= 0 || c.ConsensusThreshold > 100 {
		return fmt.Errorf("consensus_threshold must be in (0, 100], got %v", c.ConsensusThreshold)
	}
	if c.OverrideMargin < 0 || c.OverrideMargin >= c.ConsensusThreshold {
		return fmt.Errorf("override_margin must be in [0, threshold), got %v", c.OverrideMargin)
	}
	if c.QualityOverrideBar < 0 || c.QualityOverrideBar > 100 {
		return fmt.Errorf("quality_override_bar must be in [0, 100], got %v", c.QualityOverrideBar)
	}
	if c.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("call_timeout_seconds must be positive, got %d", c.CallTimeoutSeconds)
	}
	if c.BuyingPower < 0 {
		return fmt.Errorf("buying_power cannot be negative, got %v", c.BuyingPower)
	}
	if len(c.Participants) < 2 {
		return fmt.Errorf("at least 2 participants are required, got %d", len(c.Participants))
	}
	seen := map[string]bool{}
	for _, p := range c.Participants {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("participant name cannot be empty")
		}
		if seen[name] {
			return fmt.Errorf("duplicate participant name %q", name)
		}
		seen[name] = true
	}
	switch c.LLMProvider {
	case "deepseek", "openai", "":
	default:
		return fmt.Errorf("unknown llm_provider %q", c.LLMProvider)
	}
	return nil
}

func loadConfigFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) EnsureDirectories() error {
	dirs := []string{c.ProjectDir, c.ResultsDir, c.DataDir, filepath.Dir(c.DBPath)}
	for _, dir := range dirs {
		path := strings.TrimSpace(dir)
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
	}
	return nil
}
