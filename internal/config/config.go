package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the application's configuration, shared by the server and
// the background trainer.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Storage struct {
		DBPath         string `yaml:"db_path"`
		VocabPath      string `yaml:"vocab_path"`
		StatusPath     string `yaml:"status_path"`
		CheckpointPath string `yaml:"checkpoint_path"`
	} `yaml:"storage"`

	LLM struct {
		Provider   string `yaml:"provider"` // "gemini" or "openai"
		APIKey     string `yaml:"api_key"`
		ModelName  string `yaml:"model_name"`
		BaseURL    string `yaml:"base_url"`
		MaxRetries int    `yaml:"max_retries"`
	} `yaml:"llm"`

	Model struct {
		VocabCapacity int     `yaml:"vocab_capacity"`
		EmbeddingDim  int     `yaml:"embedding_dim"`
		HiddenDim     int     `yaml:"hidden_dim"`
		MaxSourceLen  int     `yaml:"max_source_len"`
		MaxTargetLen  int     `yaml:"max_target_len"`
		MaxGenTokens  int     `yaml:"max_gen_tokens"`
		LearningRate  float64 `yaml:"learning_rate"`
		GradClip      float64 `yaml:"grad_clip"`
	} `yaml:"model"`

	Training struct {
		BatchSize             int     `yaml:"batch_size"`
		QualityThreshold      float64 `yaml:"quality_threshold"`
		GrammarThreshold      float64 `yaml:"grammar_threshold"`
		CheckpointInterval    int     `yaml:"checkpoint_interval"`
		HarvestIntervalSec    int64   `yaml:"harvest_interval_seconds"`
		MinTrainingExamples   int     `yaml:"min_training_examples"`
		EvalIntervalCycles    int     `yaml:"eval_interval_cycles"`
		MinVocabSize          int     `yaml:"min_vocab_size"`
		VocabBuildMinExamples int     `yaml:"vocab_build_min_examples"`
	} `yaml:"training"`

	Scraper struct {
		MaxResults      int   `yaml:"max_results"`
		HarvestResults  int   `yaml:"harvest_results"`
		Workers         int   `yaml:"workers"`
		FetchTimeoutSec int64 `yaml:"fetch_timeout_seconds"`
	} `yaml:"scraper"`
}

// LoadConfig loads configuration from a YAML file and applies defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	// Expand environment variables in the API key
	config.LLM.APIKey = os.ExpandEnv(config.LLM.APIKey)

	return config, nil
}

// Default returns a configuration with every field set to its default,
// usable without a config file (tests, local runs).
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./data/training_data.db"
	}
	if c.Storage.VocabPath == "" {
		c.Storage.VocabPath = "./data/vocab.json"
	}
	if c.Storage.StatusPath == "" {
		c.Storage.StatusPath = "./data/model_status.json"
	}
	if c.Storage.CheckpointPath == "" {
		c.Storage.CheckpointPath = "./data/checkpoints/model_latest.ckpt"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "gemini"
	}
	if c.LLM.ModelName == "" {
		if c.LLM.Provider == "openai" {
			c.LLM.ModelName = "gpt-4o-mini"
		} else {
			c.LLM.ModelName = "gemini-2.0-flash"
		}
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}

	if c.Model.VocabCapacity == 0 {
		c.Model.VocabCapacity = 30000
	}
	if c.Model.EmbeddingDim == 0 {
		c.Model.EmbeddingDim = 128
	}
	if c.Model.HiddenDim == 0 {
		c.Model.HiddenDim = 256
	}
	if c.Model.MaxSourceLen == 0 {
		c.Model.MaxSourceLen = 256
	}
	if c.Model.MaxTargetLen == 0 {
		c.Model.MaxTargetLen = 128
	}
	if c.Model.MaxGenTokens == 0 {
		c.Model.MaxGenTokens = 100
	}
	if c.Model.LearningRate == 0 {
		c.Model.LearningRate = 0.001
	}
	if c.Model.GradClip == 0 {
		c.Model.GradClip = 5.0
	}

	if c.Training.BatchSize == 0 {
		c.Training.BatchSize = 8
	}
	if c.Training.QualityThreshold == 0 {
		c.Training.QualityThreshold = 0.85
	}
	if c.Training.GrammarThreshold == 0 {
		c.Training.GrammarThreshold = 0.90
	}
	if c.Training.CheckpointInterval == 0 {
		c.Training.CheckpointInterval = 25
	}
	if c.Training.HarvestIntervalSec == 0 {
		c.Training.HarvestIntervalSec = 30
	}
	if c.Training.MinTrainingExamples == 0 {
		c.Training.MinTrainingExamples = 100
	}
	if c.Training.EvalIntervalCycles == 0 {
		c.Training.EvalIntervalCycles = 3
	}
	if c.Training.MinVocabSize == 0 {
		c.Training.MinVocabSize = 100
	}
	if c.Training.VocabBuildMinExamples == 0 {
		c.Training.VocabBuildMinExamples = 20
	}

	if c.Scraper.MaxResults == 0 {
		c.Scraper.MaxResults = 8
	}
	if c.Scraper.HarvestResults == 0 {
		c.Scraper.HarvestResults = 3
	}
	if c.Scraper.Workers == 0 {
		c.Scraper.Workers = 5
	}
	if c.Scraper.FetchTimeoutSec == 0 {
		c.Scraper.FetchTimeoutSec = 5
	}
}
