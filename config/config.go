package config

import (
	"errors"
	"fmt"
	"time"

	"senhaerens.be/hap-dreo/fallback"
)

const (
	DefaultTopicPrefix   = "dreo"
	DefaultRecordTimeout = 5 * time.Second
)

type Device struct {
	Name         string   `yaml:"name"`
	FriendlyName string   `yaml:"friendly_name"`
	Model        string   `yaml:"model"`
	SeriesName   string   `yaml:"series_name"`
	Options      []string `yaml:"options"`
}

type Config struct {
	Hap struct {
		Dbdir  string   `yaml:"db_dir"`
		Ifaces []string `yaml:"ifaces"`
		Addr   string   `yaml:"address"`
		Pin    string   `yaml:"pin"`
	} `yaml:"hap"`

	Mqtt struct {
		Broker   string `yaml:"broker"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		ClientID string `yaml:"client_id"`
	} `yaml:"mqtt"`

	Metrics struct {
		Addr string `yaml:"address"`
	} `yaml:"metrics"`

	Fallback struct {
		Policy string `yaml:"policy"`
		Unit   string `yaml:"unit"`
	} `yaml:"fallback"`

	Dreo struct {
		TopicPrefix   string        `yaml:"topic_prefix"`
		RecordTimeout time.Duration `yaml:"record_timeout"`
		Heaters       []Device      `yaml:"heaters"`
	} `yaml:"dreo"`
}

func (c *Config) SetDefaults(programName string) {
	if c.Mqtt.ClientID == "" {
		c.Mqtt.ClientID = programName
	}
	if c.Dreo.TopicPrefix == "" {
		c.Dreo.TopicPrefix = DefaultTopicPrefix
	}
	if c.Dreo.RecordTimeout == 0 {
		c.Dreo.RecordTimeout = DefaultRecordTimeout
	}
}

func (c *Config) Validate() error {
	if c.Mqtt.Broker == "" {
		return errors.New("MQTT broker is not specified")
	}
	if _, err := fallback.ParsePolicy(c.Fallback.Policy); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	if _, err := fallback.ParseUnit(c.Fallback.Unit); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}

	seen := make(map[string]bool, len(c.Dreo.Heaters))
	for i, d := range c.Dreo.Heaters {
		if d.Name == "" {
			return fmt.Errorf("heater %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("heater %q: duplicate name", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// Resolver returns the fallback resolver selected by the fallback section.
// Call Validate first.
func (c *Config) Resolver() fallback.Resolver {
	policy, _ := fallback.ParsePolicy(c.Fallback.Policy)
	unit, _ := fallback.ParseUnit(c.Fallback.Unit)

	table := fallback.DefaultTable
	if unit != table.Unit() {
		table = fallback.NewTable(unit)
	}
	return fallback.Resolver{Table: table, Policy: policy}
}

// Record is the device record used when the cloud record never arrives.
func (d Device) Record() map[string]any {
	record := map[string]any{}
	if d.Model != "" {
		record[fallback.KeyModel] = d.Model
	}
	if d.SeriesName != "" {
		record[fallback.KeySeries] = d.SeriesName
	}
	return record
}
