package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Config holds the configuration settings for the application.
type Config struct {
	Server     *ServerConfig     `yaml:"server"`
	LogLevel   string            `yaml:"log_level"`
	DB         *DBConfig         `yaml:"db"`
	Simulation *SimulationConfig `yaml:"simulation"`
	Runner     *RunnerConfig     `yaml:"runner"`
}

// ServerConfig holds the configuration settings for the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DBConfig selects the trace store backend, eg: goleveldb, memdb
type DBConfig struct {
	Name   string `yaml:"name"`
	Dir    string `yaml:"dir"`
	DBType string `yaml:"db_type"`
}

// SimulationConfig describes the participants and the message delay.
type SimulationConfig struct {
	Honest     int    `yaml:"honest"`
	Byzantine  int    `yaml:"byzantine"`
	Passive    int    `yaml:"passive"`
	Sequential int    `yaml:"sequential"`
	Delay      uint64 `yaml:"delay"`  //logical ticks added to every send
	Epochs     int    `yaml:"epochs"` //proposals made by the runner
}

// Participants is the Streamlet n: nodes that may sign proposals.
func (c *SimulationConfig) Participants() int {
	return c.Honest + c.Byzantine
}

type RunnerConfig struct {
	Reward       int64 `yaml:"reward"`         //coinbase issuance per finalized block
	BlockChanBuf int   `yaml:"block_chan_buf"` //finalized blocks buffered before apply
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Server:   &ServerConfig{Host: "127.0.0.1", Port: 3000},
		LogLevel: "info",
		DB:       &DBConfig{Name: "trace", Dir: "./data", DBType: "memdb"},
		Simulation: &SimulationConfig{
			Honest:     3,
			Passive:    1,
			Sequential: 1,
			Delay:      10,
			Epochs:     3,
		},
		Runner: &RunnerConfig{Reward: 50, BlockChanBuf: 16},
	}
}
