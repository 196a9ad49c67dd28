package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexflow/lexflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify lexflow configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/lexflow/config.yaml
Project-specific overrides can be placed in .lexflow.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", orDefault(cfg.Anthropic.Model))
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("anthropic.aws_region: %s\n", orDefault(cfg.Anthropic.AWSRegion))
	fmt.Printf("anthropic.aws_profile: %s\n", orDefault(cfg.Anthropic.AWSProfile))
	fmt.Printf("database.path: %s\n", orDefault(cfg.Database.Path))
	fmt.Printf("engine.dependency_timeout: %s\n", timeoutString(cfg.Engine.DependencyTimeout))
	fmt.Printf("cache.ttl: %s\n", cfg.Cache.TTL)
	fmt.Printf("cache.relevance_threshold: %g\n", cfg.Cache.RelevanceThreshold)
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func timeoutString(d time.Duration) string {
	if d == 0 {
		return "unbounded"
	}
	return d.String()
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return orDefault(cfg.Anthropic.Model), nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "anthropic.aws_region":
		return orDefault(cfg.Anthropic.AWSRegion), nil
	case "anthropic.aws_profile":
		return orDefault(cfg.Anthropic.AWSProfile), nil
	case "database.path":
		return orDefault(cfg.Database.Path), nil
	case "engine.dependency_timeout":
		return timeoutString(cfg.Engine.DependencyTimeout), nil
	case "cache.ttl":
		return cfg.Cache.TTL.String(), nil
	case "cache.relevance_threshold":
		return strconv.FormatFloat(cfg.Cache.RelevanceThreshold, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		// ${VAR} references are expanded at load time, not validated here.
		if !strings.Contains(value, "${") {
			if err := config.ValidateAPIKey(value); err != nil {
				return err
			}
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_aws_bedrock: %w", err)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "database.path":
		cfg.Database.Path = value
	case "engine.dependency_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for dependency_timeout: %w", err)
		}
		cfg.Engine.DependencyTimeout = d
	case "cache.ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for cache.ttl: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("cache.ttl must be positive")
		}
		cfg.Cache.TTL = d
	case "cache.relevance_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for relevance_threshold: %w", err)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("relevance_threshold must be between 0 and 1")
		}
		cfg.Cache.RelevanceThreshold = f
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
