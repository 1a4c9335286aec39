package config

import (
	"os"

	"github.com/go-yaml/yaml"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Exchange Exchange `yaml:"exchange"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	PostgresDsn   string `yaml:"postgresDsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
}

type Exchange struct {
	// Owner is the initial exchange owner; after first boot ownership
	// lives in the database and changes via the two-phase handover.
	Owner string `yaml:"owner"`
	// Account is the exchange's own principal: operator, spender and fee
	// custodian.
	Account  string `yaml:"account"`
	FeeBps   uint32 `yaml:"feeBps"`
	UIFeeBps uint32 `yaml:"uiFeeBps"`
	// Asset identifies the settlement asset of the bundled ledger.
	Asset string `yaml:"asset"`
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, err
	}

	if config.Server.Listen == "" {
		config.Server.Listen = ":8000"
	}
	if config.Exchange.Account == "" {
		config.Exchange.Account = "exchange"
	}
	if config.Exchange.Asset == "" {
		config.Exchange.Asset = "credits"
	}

	return config, nil
}
