package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/fairline/loft/internal/config"
	"github.com/fairline/loft/internal/instance"
	"github.com/fairline/loft/internal/printer"
	"github.com/fairline/loft/pkg/datum"
)

// loadOptionalConfig reads the project config when one is present. The path
// comes from LOFT_CONFIG, defaulting to loft.yml in the working directory.
// A missing file is not an error: every command works on the environment
// and default fallbacks alone.
func loadOptionalConfig() (*config.LoftConfig, error) {
	path := os.Getenv(instance.EnvConfigPath)
	if path == "" {
		path = "loft.yml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

// resolveInstanceName picks the target instance in precedence order: the
// --name flag, the LOFT_INSTANCE_NAME environment variable, the config
// file, then the default.
func resolveInstanceName(flagValue string, cfg *config.LoftConfig) (string, error) {
	name := flagValue
	if name == "" {
		name = os.Getenv(instance.EnvInstanceName)
	}
	if name == "" && cfg != nil {
		name = cfg.Instance.Name
	}
	if name == "" {
		name = instance.DefaultName
	}
	if err := instance.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

// connect builds a store client for the target instance and verifies Redis
// is reachable before any command logic runs. The caller owns the returned
// client and must Close it.
func connect(ctx context.Context, nameFlag string) (*datum.Client, error) {
	cfg, err := loadOptionalConfig()
	if err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Fix loft.yml, or point LOFT_CONFIG at a valid config file"},
		)
	}

	name, err := resolveInstanceName(nameFlag, cfg)
	if err != nil {
		return nil, printer.Error("invalid instance name", err.Error(), nil)
	}

	var configuredURL string
	if cfg != nil {
		configuredURL = cfg.Redis.URL
	}
	redisURL := instance.ResolveRedisURL(configuredURL)

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client, err := datum.NewClient(redisOpts, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			"Could not reach the loft store.",
			map[string]string{
				"Instance": name,
				"Redis":    redisURL,
			},
			[]string{
				"Start the daemon for this project:\n  loftd",
				fmt.Sprintf("Point at another endpoint:\n  %s=redis://host:6379 loft ...", instance.EnvRedisURL),
			},
		)
	}

	return client, nil
}

// connectRedis resolves the Redis endpoint the same way connect does but
// without binding to an instance, for commands that look across every
// namespace on the server. The caller owns the returned client; the
// options are returned for opening per-instance store clients.
func connectRedis(ctx context.Context) (*redis.Client, *redis.Options, error) {
	cfg, err := loadOptionalConfig()
	if err != nil {
		return nil, nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Fix loft.yml, or point LOFT_CONFIG at a valid config file"},
		)
	}

	var configuredURL string
	if cfg != nil {
		configuredURL = cfg.Redis.URL
	}
	redisURL := instance.ResolveRedisURL(configuredURL)

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, printer.ErrorWithContext(
			"Redis connection failed",
			"Could not reach the loft store.",
			map[string]string{"Redis": redisURL},
			[]string{
				"Start the daemon for this project:\n  loftd",
				fmt.Sprintf("Point at another endpoint:\n  %s=redis://host:6379 loft ...", instance.EnvRedisURL),
			},
		)
	}

	return rdb, redisOpts, nil
}
