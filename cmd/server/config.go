package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/agentscan/andy-web/internal/handlers"
	"github.com/agentscan/andy-web/internal/services"
	"gopkg.in/yaml.v3"
)

type titleGenConfig interface {
	titleGen(systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error)
}

// BaseTitleGenConfig contains the common fields for all title generator configurations.
type BaseTitleGenConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	APIURL   string `yaml:"apiURL"`
	APIToken string `yaml:"apiToken"`
	TeamID   string `yaml:"teamID"`
	UserID   string `yaml:"userID"`
	Type     string `yaml:"type"`
	Instance string `yaml:"instance"`

	Greeting         string   `yaml:"greeting"`
	ExampleQuestions []string `yaml:"exampleQuestions"`

	TitleGeneratorPrompt string         `yaml:"titleGeneratorPrompt"`
	TitleGenerator       titleGenConfig `yaml:"titleGenerator"`
}

type firstLineConfig struct{}

type ollamaConfig struct {
	BaseTitleGenConfig `yaml:",inline"`
	Host               string `yaml:"host"`
}

type openaiConfig struct {
	BaseTitleGenConfig `yaml:",inline"`
	APIKey             string `yaml:"apiKey"`
	BaseURL            string `yaml:"baseURL"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"logLevel"`

		APIURL   string `yaml:"apiURL"`
		APIToken string `yaml:"apiToken"`
		TeamID   string `yaml:"teamID"`
		UserID   string `yaml:"userID"`
		Type     string `yaml:"type"`
		Instance string `yaml:"instance"`

		Greeting         string   `yaml:"greeting"`
		ExampleQuestions []string `yaml:"exampleQuestions"`

		TitleGeneratorPrompt string         `yaml:"titleGeneratorPrompt"`
		TitleGenerator       map[string]any `yaml:"titleGenerator"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.LogLevel = rawConfig.LogLevel
	c.APIURL = rawConfig.APIURL
	c.APIToken = rawConfig.APIToken
	c.TeamID = rawConfig.TeamID
	c.UserID = rawConfig.UserID
	c.Type = rawConfig.Type
	c.Instance = rawConfig.Instance
	c.Greeting = rawConfig.Greeting
	c.ExampleQuestions = rawConfig.ExampleQuestions
	c.TitleGeneratorPrompt = rawConfig.TitleGeneratorPrompt

	provider, _ := rawConfig.TitleGenerator["provider"].(string)

	var tg titleGenConfig
	switch provider {
	case "", "none":
		c.TitleGenerator = firstLineConfig{}
		return nil
	case "ollama":
		tg = &ollamaConfig{}
	case "openai":
		tg = &openaiConfig{}
	default:
		return fmt.Errorf("unknown title generator provider: %s", provider)
	}

	tgRawYAML, err := yaml.Marshal(rawConfig.TitleGenerator)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(tgRawYAML, tg); err != nil {
		return err
	}

	c.TitleGenerator = tg
	return nil
}

// applyEnv lets the environment override the connection settings of the config file.
func (c *config) applyEnv() {
	if v := os.Getenv("ANDY_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("ANDY_TEAM_ID"); v != "" {
		c.TeamID = v
	}
	if v := os.Getenv("ANDY_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.TitleGenerator == nil {
		c.TitleGenerator = firstLineConfig{}
	}
}

func (c config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("apiURL is required")
	}
	return nil
}

func (c config) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c config) apiConfig() services.APIConfig {
	return services.APIConfig{
		BaseURL:  c.APIURL,
		TeamID:   c.TeamID,
		UserID:   c.UserID,
		Type:     c.Type,
		Instance: c.Instance,
		Tokens:   services.StaticToken(c.APIToken),
	}
}

func (firstLineConfig) titleGen(string, *slog.Logger) (handlers.TitleGenerator, error) {
	return services.FirstLine{}, nil
}

func (o ollamaConfig) titleGen(systemPrompt string, _ *slog.Logger) (handlers.TitleGenerator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	ollama, err := services.NewOllama(host, o.Model, systemPrompt)
	if err != nil {
		return nil, err
	}
	return ollama, nil
}

func (o openaiConfig) titleGen(systemPrompt string, logger *slog.Logger) (handlers.TitleGenerator, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("apiKey is required")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, logger), nil
}
