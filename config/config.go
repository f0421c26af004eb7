package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vadiminshakov/whalewatch/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds tracker configuration.
type Config struct {
	APIURL       string
	PollInterval time.Duration
	FetchTimeout time.Duration
	Concurrency  int
	ListenAddr   string
	DataDir      string
	Wallets      []string
}

type configTmp struct {
	APIURL       string        `yaml:"api_url,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
	Concurrency  int           `yaml:"concurrency,omitempty"`
	ListenAddr   string        `yaml:"listen_addr,omitempty"`
	DataDir      string        `yaml:"data_dir,omitempty"`
	Wallets      []string      `yaml:"wallets,omitempty"`
}

// Get reads configuration from a yaml file when --config is provided,
// otherwise from CLI flags.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	pollInterval := flag.Duration("pollinterval", 30*time.Second, "wallet poll interval")
	fetchTimeout := flag.Duration("fetchtimeout", 10*time.Second, "per-wallet fetch timeout")
	concurrency := flag.Int("concurrency", 8, "max wallets polled concurrently")
	listenAddr := flag.String("listen", ":8080", "HTTP listen address")
	dataDir := flag.String("datadir", "./wal", "directory for WAL storage")
	apiURL := flag.String("apiurl", "", "exchange API base URL (empty for mainnet)")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := Config{
		APIURL:       *apiURL,
		PollInterval: *pollInterval,
		FetchTimeout: *fetchTimeout,
		Concurrency:  *concurrency,
		ListenAddr:   *listenAddr,
		DataDir:      *dataDir,
		Wallets:      flag.Args(),
	}
	return cfg, cfg.validate()
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIURL:       tmp.APIURL,
		PollInterval: tmp.PollInterval,
		FetchTimeout: tmp.FetchTimeout,
		Concurrency:  tmp.Concurrency,
		ListenAddr:   tmp.ListenAddr,
		DataDir:      tmp.DataDir,
		Wallets:      tmp.Wallets,
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 8
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./wal"
	}

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	for _, wallet := range c.Wallets {
		if err := domain.ValidateWallet(wallet); err != nil {
			return fmt.Errorf("incorrect 'wallets' entry in config: %w", err)
		}
	}
	return nil
}
