// Package config loads client settings from YAML or HCL files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"gopkg.in/yaml.v3"

	"opendeckmcp/pkg/bulk"
	"opendeckmcp/pkg/device"
	"opendeckmcp/pkg/opendeck"
)

var ErrUnknownFormat = errors.New("unknown config file format")

// Config mirrors the config file. Durations are strings such as "250ms".
type Config struct {
	Output string `yaml:"output,omitempty" hcl:"output,optional"`

	HandshakeTimeout string `yaml:"handshake_timeout,omitempty" hcl:"handshake_timeout,optional"`
	RetryDelay       string `yaml:"retry_delay,omitempty" hcl:"retry_delay,optional"`
	MaxAttempts      int    `yaml:"max_attempts,omitempty" hcl:"max_attempts,optional"`

	RequestTimeout         string   `yaml:"request_timeout,omitempty" hcl:"request_timeout,optional"`
	ValueReadTimeout       string   `yaml:"value_read_timeout,omitempty" hcl:"value_read_timeout,optional"`
	WatcherInterval        string   `yaml:"watcher_interval,omitempty" hcl:"watcher_interval,optional"`
	ComponentRetrySchedule []string `yaml:"component_retry_schedule,omitempty" hcl:"component_retry_schedule,optional"`
	UploadLineDelay        string   `yaml:"upload_line_delay,omitempty" hcl:"upload_line_delay,optional"`
	MaxConsecutiveFailures int      `yaml:"max_consecutive_failures,omitempty" hcl:"max_consecutive_failures,optional"`

	MetricsAddress string `yaml:"metrics_address,omitempty" hcl:"metrics_address,optional"`
	RequestLog     string `yaml:"request_log,omitempty" hcl:"request_log,optional"`

	Boards []*BoardSchema `yaml:"boards,omitempty" hcl:"board,block"`
}

// BoardSchema is one board table entry. IDs are 4 hex bytes.
type BoardSchema struct {
	Name         string `yaml:"name" hcl:"name,label"`
	ID           string `yaml:"id" hcl:"id,attr"`
	OldID        string `yaml:"old_id,omitempty" hcl:"old_id,optional"`
	FirmwareFile string `yaml:"firmware_file,omitempty" hcl:"firmware_file,optional"`
}

// Default returns the built-in settings.
func Default() *Config {
	d := device.DefaultConfig()
	schedule := make([]string, 0, len(d.ComponentRetrySchedule))
	for _, s := range d.ComponentRetrySchedule {
		schedule = append(schedule, s.String())
	}
	return &Config{
		HandshakeTimeout:       d.Match.HandshakeTimeout.String(),
		RetryDelay:             d.Match.RetryDelay.String(),
		MaxAttempts:            d.Match.MaxAttempts,
		RequestTimeout:         d.RequestTimeout.String(),
		ValueReadTimeout:       d.ValueReadTimeout.String(),
		WatcherInterval:        d.WatcherInterval.String(),
		ComponentRetrySchedule: schedule,
		UploadLineDelay:        bulk.DefaultLineDelay.String(),
		MaxConsecutiveFailures: d.MaxConsecutiveFailures,
	}
}

// Load reads path on top of the defaults. The format follows the extension:
// .yaml/.yml or .hcl. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	file := new(Config)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = file.DecodeYAML(data)
	case ".hcl":
		err = file.DecodeHCL(data)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.merge(file)
	if _, err := c.Device(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c *Config) DecodeYAML(data []byte) error {
	return yaml.Unmarshal(data, c)
}

func (c *Config) DecodeHCL(data []byte) error {
	file, diag := hclsyntax.ParseConfig(data, "", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	diag = gohcl.DecodeBody(file.Body, nil, c)
	if diag.HasErrors() {
		return diag.Errs()[0]
	}
	return nil
}

// merge copies every setting present in o.
func (c *Config) merge(o *Config) {
	str := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	num := func(dst *int, src int) {
		if src != 0 {
			*dst = src
		}
	}

	str(&c.Output, o.Output)
	str(&c.HandshakeTimeout, o.HandshakeTimeout)
	str(&c.RetryDelay, o.RetryDelay)
	num(&c.MaxAttempts, o.MaxAttempts)
	str(&c.RequestTimeout, o.RequestTimeout)
	str(&c.ValueReadTimeout, o.ValueReadTimeout)
	str(&c.WatcherInterval, o.WatcherInterval)
	if len(o.ComponentRetrySchedule) > 0 {
		c.ComponentRetrySchedule = o.ComponentRetrySchedule
	}
	str(&c.UploadLineDelay, o.UploadLineDelay)
	num(&c.MaxConsecutiveFailures, o.MaxConsecutiveFailures)
	str(&c.MetricsAddress, o.MetricsAddress)
	str(&c.RequestLog, o.RequestLog)
	if len(o.Boards) > 0 {
		c.Boards = o.Boards
	}
}

// Device converts the settings into a device client configuration.
func (c *Config) Device() (device.Config, error) {
	d := device.DefaultConfig()

	var err error
	durations := []struct {
		name string
		val  string
		dst  *time.Duration
	}{
		{"handshake_timeout", c.HandshakeTimeout, &d.Match.HandshakeTimeout},
		{"retry_delay", c.RetryDelay, &d.Match.RetryDelay},
		{"request_timeout", c.RequestTimeout, &d.RequestTimeout},
		{"value_read_timeout", c.ValueReadTimeout, &d.ValueReadTimeout},
		{"watcher_interval", c.WatcherInterval, &d.WatcherInterval},
	}
	for _, f := range durations {
		if f.val == "" {
			continue
		}
		if *f.dst, err = parseDuration(f.name, f.val); err != nil {
			return device.Config{}, err
		}
	}

	if c.MaxAttempts != 0 {
		d.Match.MaxAttempts = c.MaxAttempts
	}
	if c.MaxConsecutiveFailures != 0 {
		d.MaxConsecutiveFailures = c.MaxConsecutiveFailures
	}

	if len(c.ComponentRetrySchedule) > 0 {
		d.ComponentRetrySchedule = nil
		for _, s := range c.ComponentRetrySchedule {
			v, err := parseDuration("component_retry_schedule", s)
			if err != nil {
				return device.Config{}, err
			}
			d.ComponentRetrySchedule = append(d.ComponentRetrySchedule, v)
		}
	}

	if d.Boards, err = c.BoardTable(); err != nil {
		return device.Config{}, err
	}
	return d, nil
}

// LineDelay is the pause between uploaded restore or firmware lines.
func (c *Config) LineDelay() (time.Duration, error) {
	if c.UploadLineDelay == "" {
		return bulk.DefaultLineDelay, nil
	}
	return parseDuration("upload_line_delay", c.UploadLineDelay)
}

func (c *Config) BoardTable() (opendeck.BoardTable, error) {
	table := make(opendeck.BoardTable, 0, len(c.Boards))
	for _, b := range c.Boards {
		id, err := opendeck.ParseBoardUID(b.ID)
		if err != nil {
			return nil, fmt.Errorf("board %q: %w", b.Name, err)
		}
		board := opendeck.Board{Name: b.Name, ID: id, FirmwareFile: b.FirmwareFile}
		if b.OldID != "" {
			old, err := opendeck.ParseBoardUID(b.OldID)
			if err != nil {
				return nil, fmt.Errorf("board %q old id: %w", b.Name, err)
			}
			board.OldID = &old
		}
		table = append(table, board)
	}
	return table, nil
}

func parseDuration(name, val string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(val))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", name, val)
	}
	return d, nil
}
