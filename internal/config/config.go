package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Runtime     RuntimeConfig
	Classifier  ClassifierConfig
	Captioner   CaptionerConfig
	Labels      LabelsConfig
	Inference   InferenceConfig
	RedisConfig RedisConfig
	CacheEnable bool `env:"CACHE_ENABLE"`
}

type ServerConfig struct {
	Port              string        `env:"SERVER_PORT" envDefault:"8080"`
	ReadHeaderTimeout time.Duration `env:"SERVER_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxUploadBytes    int64         `env:"SERVER_MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxImagePixels    int           `env:"SERVER_MAX_IMAGE_PIXELS" envDefault:"33554432"`
}

type RuntimeConfig struct {
	// LibraryPath points at libonnxruntime; empty uses the onnxruntime_go default.
	LibraryPath string `env:"ORT_LIBRARY_PATH"`
}

type ClassifierConfig struct {
	ModelPath    string `env:"CLASSIFIER_MODEL_PATH" envDefault:"models/resnet18.onnx"`
	MetadataPath string `env:"CLASSIFIER_METADATA_PATH" envDefault:"models/resnet18_metadata.json"`
}

type CaptionerConfig struct {
	ModelDir      string `env:"CAPTIONER_MODEL_DIR" envDefault:"models/blip-image-captioning-base"`
	TokenizerRepo string `env:"CAPTIONER_TOKENIZER_REPO" envDefault:"Salesforce/blip-image-captioning-base"`
	TokenizerDir  string `env:"CAPTIONER_TOKENIZER_CACHE_DIR" envDefault:"models/hf-cache"`
	HFToken       string `env:"HF_TOKEN"`
	Prompt        string `env:"CAPTIONER_PROMPT" envDefault:"a photography of"`
	MaxNewTokens  int    `env:"CAPTIONER_MAX_NEW_TOKENS" envDefault:"50"`
}

type LabelsConfig struct {
	Path         string        `env:"LABELS_PATH" envDefault:"models/imagenet_classes.txt"`
	URL          string        `env:"LABELS_URL" envDefault:"https://raw.githubusercontent.com/pytorch/hub/master/imagenet_classes.txt"`
	FetchTimeout time.Duration `env:"LABELS_FETCH_TIMEOUT" envDefault:"30s"`
}

type InferenceConfig struct {
	Workers   int `env:"INFERENCE_WORKERS" envDefault:"2"`
	QueueSize int `env:"INFERENCE_QUEUE_SIZE" envDefault:"64"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR" envDefault:"redis:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	TTL      time.Duration `env:"REDIS_TTL" envDefault:"0s"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
