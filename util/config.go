package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "vidfed"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host            string
		HttpPort        int    `yaml:"httpPort"`
		SslDomain       string `yaml:"sslDomain"`
		SignFetches     bool   `yaml:"signFetches"`
		FetchTimeoutSec int    `yaml:"fetchTimeoutSec"`
	}
}

// BaseUrl returns the public https base URL of this instance.
func (c *AppConfig) BaseUrl() string {
	return fmt.Sprintf("https://%s", c.Conf.SslDomain)
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("VIDFED_HOST")
	envHttpPort := os.Getenv("VIDFED_HTTPPORT")
	envSslDomain := os.Getenv("VIDFED_SSLDOMAIN")
	envSignFetches := os.Getenv("VIDFED_SIGN_FETCHES")
	envFetchTimeout := os.Getenv("VIDFED_FETCH_TIMEOUT_SEC")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envSslDomain != "" {
		c.Conf.SslDomain = envSslDomain
	}

	if envSignFetches == "true" {
		c.Conf.SignFetches = true
	}

	if envFetchTimeout != "" {
		v, err := strconv.Atoi(envFetchTimeout)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.FetchTimeoutSec = v
	}

	if c.Conf.FetchTimeoutSec <= 0 {
		c.Conf.FetchTimeoutSec = 10
	}

	return c, nil
}
