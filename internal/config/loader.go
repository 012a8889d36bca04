package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// envPrefix scopes which environment variables the loader reads.
const envPrefix = "CITEGUARD_"

// maxConfigFileSize caps config files at 1MB.
const maxConfigFileSize = 1024 * 1024

// Load reads configuration with the following precedence, highest first:
//
//  1. Environment variables (CITEGUARD_SERVER_PORT, CITEGUARD_GENERATION_API_KEY, ...)
//  2. The YAML file at configPath, if it exists
//  3. Built-in defaults
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and replacing the first underscore with a dot:
//
//	CITEGUARD_SERVER_PORT              -> server.port
//	CITEGUARD_GUARDRAILS_GROUNDING_THRESHOLD -> guardrails.grounding_threshold
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			if len(content) > maxConfigFileSize {
				return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", transformEnv), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// transformEnv maps CITEGUARD_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore becomes a section separator; the rest stay
// underscores because field names use snake_case.
func transformEnv(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.Replace(s, "_", ".", 1)
}
