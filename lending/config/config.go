package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Astemirdum/lending-service/pkg/boltdb"
	"github.com/Astemirdum/lending-service/pkg/circuit_breaker"
	"github.com/Astemirdum/lending-service/pkg/kafka"
	"github.com/Astemirdum/lending-service/pkg/logger"
	"github.com/Astemirdum/lending-service/pkg/postgres"
	"github.com/Astemirdum/lending-service/pkg/redislock"
)

const (
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"

	fileEnv = "LENDING_CONFIG_FILE"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"LENDING_HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"LENDING_HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"10s"`
}

type Storage struct {
	Driver string `yaml:"driver" envconfig:"STORAGE_DRIVER" default:"postgres"`
}

type Config struct {
	Server         HTTPServer             `yaml:"server"`
	Storage        Storage                `yaml:"storage"`
	Database       postgres.DB            `yaml:"database"`
	Bolt           boltdb.Config          `yaml:"bolt"`
	Redis          redislock.Config       `yaml:"redis"`
	Kafka          kafka.Config           `yaml:"kafka"`
	CircuitBreaker circuit_breaker.Config `yaml:"circuitBreaker"`
	Log            logger.Log             `yaml:"log"`
}

var (
	once sync.Once
	cfg  *Config
)

// NewConfig reads config once per process and exits when it is invalid.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		config, err := Load(ops...)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(*cfg)
	})

	return cfg
}

// Load builds a Config from tag defaults and the environment, then the YAML
// file named by LENDING_CONFIG_FILE, then ops.
func Load(ops ...Option) (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, errors.Wrap(err, "envconfig")
	}
	if path := os.Getenv(fileEnv); path != "" {
		if err := loadFile(path, &config); err != nil {
			return nil, err
		}
	}
	for _, op := range ops {
		op(&config)
	}

	switch config.Storage.Driver {
	case DriverPostgres, DriverBolt:
	default:
		return nil, errors.Errorf("unknown storage driver %q", config.Storage.Driver)
	}
	return &config, nil
}

func loadFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config file")
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func printConfig(cfg Config) {
	cfg.Database.Password = "***"
	cfg.Redis.Password = "***"
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
