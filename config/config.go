package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"block-watch/domain/monitor"
)

var Props Config

type Config struct {
	FirewallPath  string
	StorePath     string
	AuditLogPath  string
	BlockTTL      string
	SweepInterval string
	ExecTimeout   string
	GeoIPDir      string
	Monitors      []monitor.Config

	blockTTL      time.Duration
	sweepInterval time.Duration
	execTimeout   time.Duration
}

// Load reads the JSON config file into Props and applies defaults. An empty
// path means defaults only, for the one-shot admin commands.
func Load(configPath string) error {
	Props = Config{}
	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("open config failed. Error: %w", err)
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&Props)
		if err != nil {
			return fmt.Errorf("load config failed. Error: %w", err)
		}
	}
	Props.applyDefaults()
	return Props.parseDurations()
}

func (c *Config) applyDefaults() {
	if c.FirewallPath == "" {
		c.FirewallPath = "/sbin/iptables"
	}
	if c.StorePath == "" {
		c.StorePath = "data/blocklist.json"
	}
	if c.AuditLogPath == "" {
		c.AuditLogPath = "logs/actions.log"
	}
	if c.BlockTTL == "" {
		c.BlockTTL = "1h"
	}
	if c.SweepInterval == "" {
		c.SweepInterval = "60s"
	}
	if c.ExecTimeout == "" {
		c.ExecTimeout = "10s"
	}
}

func (c *Config) parseDurations() error {
	var err error
	c.blockTTL, err = time.ParseDuration(c.BlockTTL)
	if err != nil {
		return fmt.Errorf("invalid block TTL format %s", c.BlockTTL)
	}
	c.sweepInterval, err = time.ParseDuration(c.SweepInterval)
	if err != nil {
		return fmt.Errorf("invalid sweep interval format %s", c.SweepInterval)
	}
	c.execTimeout, err = time.ParseDuration(c.ExecTimeout)
	if err != nil {
		return fmt.Errorf("invalid exec timeout format %s", c.ExecTimeout)
	}
	if c.blockTTL <= 0 || c.sweepInterval <= 0 || c.execTimeout <= 0 {
		return fmt.Errorf("durations must be bigger than zero")
	}
	return nil
}

func (c *Config) BlockTTLDuration() time.Duration      { return c.blockTTL }
func (c *Config) SweepIntervalDuration() time.Duration { return c.sweepInterval }
func (c *Config) ExecTimeoutDuration() time.Duration   { return c.execTimeout }
