package cli

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/config"
	"github.com/forPelevin/hlshorts/internal/logging"
)

type commandContext struct {
	configFlag *string
	logLevel   *string
	logFormat  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevel, logFormat *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		logLevel:   logLevel,
		logFormat:  logFormat,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// settings returns a copy of the loaded configuration that a command may
// adjust with its own flags.
func (c *commandContext) settings() (*config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	cp := *cfg
	cp.LLM.AllowedHosts = append([]string(nil), cfg.LLM.AllowedHosts...)
	cp.Tools.DetectorCmd = append([]string(nil), cfg.Tools.DetectorCmd...)
	return &cp, nil
}

// logger builds the process logger. Flags win over the [logging] section.
func (c *commandContext) logger(cmd *cobra.Command) (*slog.Logger, error) {
	opts := logging.Options{Output: cmd.ErrOrStderr()}
	if cfg, err := c.ensureConfig(); err == nil {
		opts.Level = cfg.Logging.Level
		opts.Format = cfg.Logging.Format
	}
	if v := flagValue(c.logLevel); v != "" {
		opts.Level = v
	}
	if v := flagValue(c.logFormat); v != "" {
		opts.Format = v
	}
	return logging.New(opts)
}

func flagValue(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
