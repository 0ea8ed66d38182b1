package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	Risk      RiskConfig
	Vitals    VitalsConfig
	OCR       OCRConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowOrigins   string
	IsDevelopment  bool
	MaxPromptChars int
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	EmbeddingTTL int
}

type LLMConfig struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	Referer     string
	Title       string
}

type EmbeddingConfig struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	BatchSize  int
	TimeoutSec int
}

type RetrievalConfig struct {
	TopK          int
	MaxChunkChars int
	SummaryChars  int
}

type RiskConfig struct {
	ModelPath     string
	DatasetPath   string
	AutoProvision bool
	TestSize      float64
	Seed          int64
	Iterations    int
	C             float64
}

type VitalsConfig struct {
	Defaults VitalsDefaults
}

type VitalsDefaults struct {
	Pregnancies              float64
	Glucose                  float64
	BloodPressure            float64
	SkinThickness            float64
	Insulin                  float64
	BMI                      float64
	DiabetesPedigreeFunction float64
	Age                      float64
}

type OCRConfig struct {
	Endpoint   string
	TimeoutSec int
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/medprompt")

	v.SetEnvPrefix("MEDPROMPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("llm.apiKey", "MEDPROMPT_LLM_APIKEY", "OPENROUTER_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid retrieval.topK: %d", c.Retrieval.TopK)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("invalid embedding.dimension: %d", c.Embedding.Dimension)
	}
	if c.Risk.TestSize <= 0 || c.Risk.TestSize >= 1 {
		return fmt.Errorf("invalid risk.testSize: %v", c.Risk.TestSize)
	}
	switch c.Embedding.Provider {
	case "local", "openai":
	default:
		return fmt.Errorf("unknown embedding.provider: %q", c.Embedding.Provider)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 120)
	v.SetDefault("server.bodyLimit", 20971520)
	v.SetDefault("server.allowOrigins", "*")
	v.SetDefault("server.isDevelopment", true)
	v.SetDefault("server.maxPromptChars", 8000)

	v.SetDefault("sqlite.enabled", true)
	v.SetDefault("sqlite.path", "./data/medprompt.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTL", 1440)

	v.SetDefault("llm.baseURL", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "mistralai/mistral-7b-instruct")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 1024)
	v.SetDefault("llm.timeoutSec", 60)
	v.SetDefault("llm.referer", "http://localhost:8000")
	v.SetDefault("llm.title", "medprompt-backend")

	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 384)
	v.SetDefault("embedding.batchSize", 100)
	v.SetDefault("embedding.timeoutSec", 30)

	v.SetDefault("retrieval.topK", 3)
	v.SetDefault("retrieval.maxChunkChars", 1500)
	v.SetDefault("retrieval.summaryChars", 3000)

	v.SetDefault("risk.modelPath", "./data/risk_model.json")
	v.SetDefault("risk.datasetPath", "./data/diabetes.csv")
	v.SetDefault("risk.autoProvision", true)
	v.SetDefault("risk.testSize", 0.2)
	v.SetDefault("risk.seed", 42)
	v.SetDefault("risk.iterations", 1000)
	v.SetDefault("risk.c", 1.0)

	v.SetDefault("vitals.defaults.pregnancies", 0)
	v.SetDefault("vitals.defaults.glucose", 120)
	v.SetDefault("vitals.defaults.bloodPressure", 70)
	v.SetDefault("vitals.defaults.skinThickness", 20)
	v.SetDefault("vitals.defaults.insulin", 85)
	v.SetDefault("vitals.defaults.bmi", 26.5)
	v.SetDefault("vitals.defaults.diabetesPedigreeFunction", 0.35)
	v.SetDefault("vitals.defaults.age", 45)

	v.SetDefault("ocr.timeoutSec", 30)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
