package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/lattice/cli/config"
)

// Precedence for every run setting: explicit flag, then config file, then
// the flag default.

func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

func resolveInt64(c *cli.Context, name string, cfgVal int64) int64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int64(name)
	}
	return cfgVal
}

func resolveUint64(c *cli.Context, name string, cfgVal uint64) uint64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Uint64(name)
	}
	return cfgVal
}

func resolveFloat64(c *cli.Context, name string, cfgVal float64) float64 {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Float64(name)
	}
	return cfgVal
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// loadConfig reads path, or returns an empty config when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}
