package probez

import (
	"fmt"
	"strings"
	"time"

	"fortio.org/safecast"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zoobzio/probez/pbz"
	"github.com/zoobzio/probez/protos"
)

// SessionConfig describes a tracing session. It encodes to and parses from
// TraceConfig bytes, and decodes from TOML.
type SessionConfig struct {
	BufferSizeKB uint32             `toml:"buffer_size_kb"`
	FillPolicy   FillPolicy         `toml:"fill_policy"`
	DurationMs   uint32             `toml:"duration_ms"`
	DataSources  []DataSourceConfig `toml:"data_source"`
	Triggers     TriggerConfig      `toml:"triggers"`

	// IncrementalClearPeriodMs periodically clears incremental state of
	// every instance when non-zero.
	IncrementalClearPeriodMs uint32 `toml:"incremental_clear_period_ms"`
}

// DataSourceConfig enables one data source in a session.
type DataSourceConfig struct {
	Name string `toml:"name"`

	// Categories filters track event categories. Nil or empty enables all.
	Categories CategoryFilters `toml:"categories"`

	// Payload is handed to the data source untouched.
	Payload string `toml:"payload"`
}

// TriggerMode selects what a matching trigger does to a session.
type TriggerMode uint32

const (
	// TriggerNone disables triggers.
	TriggerNone TriggerMode = TriggerMode(protos.TriggerModeUnspecified)
	// TriggerStartTracing keeps data sources idle until a trigger arrives.
	TriggerStartTracing TriggerMode = TriggerMode(protos.TriggerModeStartTracing)
	// TriggerStopTracing stops the session after a trigger arrives.
	TriggerStopTracing TriggerMode = TriggerMode(protos.TriggerModeStopTracing)
)

// String returns the config file spelling of the mode.
func (m TriggerMode) String() string {
	switch m {
	case TriggerStartTracing:
		return "start_tracing"
	case TriggerStopTracing:
		return "stop_tracing"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m TriggerMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *TriggerMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "none":
		*m = TriggerNone
	case "start_tracing", "start":
		*m = TriggerStartTracing
	case "stop_tracing", "stop":
		*m = TriggerStopTracing
	default:
		return fmt.Errorf("%w: unknown trigger mode %q", ErrInvalidConfig, string(text))
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (f FillPolicy) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FillPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "ring_buffer", "ring":
		*f = FillRingBuffer
	case "discard":
		*f = FillDiscard
	default:
		return fmt.Errorf("%w: unknown fill policy %q", ErrInvalidConfig, string(text))
	}
	return nil
}

// TriggerConfig configures trigger handling.
type TriggerConfig struct {
	Mode      TriggerMode `toml:"mode"`
	TimeoutMs uint32      `toml:"timeout_ms"`
	Triggers  []Trigger   `toml:"trigger"`
}

// Trigger is one trigger a session reacts to.
type Trigger struct {
	Name        string `toml:"name"`
	StopDelayMs uint32 `toml:"stop_delay_ms"`
}

func (c TriggerConfig) find(name string) (Trigger, bool) {
	for _, t := range c.Triggers {
		if t.Name == name {
			return t, true
		}
	}
	return Trigger{}, false
}

func msDuration(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Encode serializes the config as TraceConfig bytes.
func (c SessionConfig) Encode() []byte {
	m := pbz.NewMessage(128)

	m.BeginNested(protos.TraceConfigBuffers)
	if c.BufferSizeKB > 0 {
		m.AppendVarint(protos.BufferConfigSizeKB, uint64(c.BufferSizeKB))
	}
	policy := c.FillPolicy
	if policy != FillDiscard {
		policy = FillRingBuffer
	}
	m.AppendVarint(protos.BufferConfigFillPolicy, uint64(policy))
	m.EndNested()

	for _, ds := range c.DataSources {
		m.BeginNested(protos.TraceConfigDataSources)
		m.AppendBytes(protos.TraceConfigDataSourceConfig, ds.Encode())
		m.EndNested()
	}

	if c.DurationMs > 0 {
		m.AppendVarint(protos.TraceConfigDurationMs, uint64(c.DurationMs))
	}

	if c.Triggers.Mode != TriggerNone || len(c.Triggers.Triggers) > 0 {
		m.BeginNested(protos.TraceConfigTriggerConfig)
		m.AppendVarint(protos.TriggerConfigTriggerMode, uint64(c.Triggers.Mode))
		for _, t := range c.Triggers.Triggers {
			m.BeginNested(protos.TriggerConfigTriggers)
			m.AppendString(protos.TriggerConfigTriggerName, t.Name)
			if t.StopDelayMs > 0 {
				m.AppendVarint(protos.TriggerConfigTriggerStopDelayMs, uint64(t.StopDelayMs))
			}
			m.EndNested()
		}
		if c.Triggers.TimeoutMs > 0 {
			m.AppendVarint(protos.TriggerConfigTriggerTimeoutMs, uint64(c.Triggers.TimeoutMs))
		}
		m.EndNested()
	}

	if c.IncrementalClearPeriodMs > 0 {
		m.BeginNested(protos.TraceConfigIncrementalStateConfig)
		m.AppendVarint(protos.IncrementalStateConfigClearPeriodMs, uint64(c.IncrementalClearPeriodMs))
		m.EndNested()
	}

	return m.Bytes()
}

// Encode serializes the config as DataSourceConfig bytes, the form handed
// to Handler.OnSetup.
func (c DataSourceConfig) Encode() []byte {
	m := pbz.NewMessage(64)
	m.AppendString(protos.DataSourceConfigName, c.Name)
	if len(c.Categories) > 0 {
		m.BeginNested(protos.DataSourceConfigTrackEventConfig)
		for _, f := range c.Categories {
			tag, isTag := f.Tag()
			switch {
			case isTag && f.Allow:
				m.AppendString(protos.TrackEventConfigEnabledTags, tag)
			case isTag:
				m.AppendString(protos.TrackEventConfigDisabledTags, tag)
			case f.Allow:
				m.AppendString(protos.TrackEventConfigEnabledCategories, f.Pattern)
			default:
				m.AppendString(protos.TrackEventConfigDisabledCategories, f.Pattern)
			}
		}
		m.EndNested()
	}
	if c.Payload != "" {
		m.AppendString(protos.DataSourceConfigLegacyConfig, c.Payload)
	}
	return m.Bytes()
}

// ParseSessionConfig parses TraceConfig bytes. Unknown fields are ignored.
func ParseSessionConfig(b []byte) (SessionConfig, error) {
	var c SessionConfig
	buffers := 0
	err := eachField(b, func(f pbz.Field) error {
		var err error
		switch f.Number {
		case protos.TraceConfigBuffers:
			buffers++
			if buffers > 1 {
				// Only the first buffer is used; every data source writes to it.
				return nil
			}
			err = parseBufferConfig(f.Bytes, &c)
		case protos.TraceConfigDataSources:
			err = eachField(f.Bytes, func(inner pbz.Field) error {
				if inner.Number != protos.TraceConfigDataSourceConfig {
					return nil
				}
				ds, err := ParseDataSourceConfig(inner.Bytes)
				if err != nil {
					return err
				}
				c.DataSources = append(c.DataSources, ds)
				return nil
			})
		case protos.TraceConfigDurationMs:
			c.DurationMs, err = narrow32(f, "duration_ms")
		case protos.TraceConfigTriggerConfig:
			err = parseTriggerConfig(f.Bytes, &c.Triggers)
		case protos.TraceConfigIncrementalStateConfig:
			err = eachField(f.Bytes, func(inner pbz.Field) error {
				if inner.Number != protos.IncrementalStateConfigClearPeriodMs {
					return nil
				}
				var err error
				c.IncrementalClearPeriodMs, err = narrow32(inner, "clear_period_ms")
				return err
			})
		}
		return err
	})
	if err != nil {
		return SessionConfig{}, err
	}
	return c, nil
}

func parseBufferConfig(b []byte, c *SessionConfig) error {
	return eachField(b, func(f pbz.Field) error {
		switch f.Number {
		case protos.BufferConfigSizeKB:
			v, err := narrow32(f, "size_kb")
			c.BufferSizeKB = v
			return err
		case protos.BufferConfigFillPolicy:
			if f.Varint == protos.FillPolicyDiscard {
				c.FillPolicy = FillDiscard
			} else {
				c.FillPolicy = FillRingBuffer
			}
		}
		return nil
	})
}

func parseTriggerConfig(b []byte, c *TriggerConfig) error {
	return eachField(b, func(f pbz.Field) error {
		switch f.Number {
		case protos.TriggerConfigTriggerMode:
			switch f.Varint {
			case protos.TriggerModeStartTracing:
				c.Mode = TriggerStartTracing
			case protos.TriggerModeStopTracing:
				c.Mode = TriggerStopTracing
			default:
				c.Mode = TriggerNone
			}
		case protos.TriggerConfigTriggers:
			var t Trigger
			err := eachField(f.Bytes, func(inner pbz.Field) error {
				switch inner.Number {
				case protos.TriggerConfigTriggerName:
					t.Name = inner.String()
				case protos.TriggerConfigTriggerStopDelayMs:
					v, err := narrow32(inner, "stop_delay_ms")
					t.StopDelayMs = v
					return err
				}
				return nil
			})
			if err != nil {
				return err
			}
			c.Triggers = append(c.Triggers, t)
		case protos.TriggerConfigTriggerTimeoutMs:
			v, err := narrow32(f, "trigger_timeout_ms")
			c.TimeoutMs = v
			return err
		}
		return nil
	})
}

// ParseDataSourceConfig parses the DataSourceConfig bytes handed to
// Handler.OnSetup.
func ParseDataSourceConfig(b []byte) (DataSourceConfig, error) {
	var c DataSourceConfig
	err := eachField(b, func(f pbz.Field) error {
		switch f.Number {
		case protos.DataSourceConfigName:
			c.Name = f.String()
		case protos.DataSourceConfigLegacyConfig:
			c.Payload = f.String()
		case protos.DataSourceConfigTrackEventConfig:
			if c.Categories == nil {
				c.Categories = CategoryFilters{}
			}
			return eachField(f.Bytes, func(inner pbz.Field) error {
				if inner.Type != protowire.BytesType {
					return nil
				}
				v := inner.String()
				switch inner.Number {
				case protos.TrackEventConfigDisabledCategories:
					c.Categories = append(c.Categories, Deny(v))
				case protos.TrackEventConfigEnabledCategories:
					c.Categories = append(c.Categories, Allow(v))
				case protos.TrackEventConfigDisabledTags:
					c.Categories = append(c.Categories, Deny(tagPrefix+v))
				case protos.TrackEventConfigEnabledTags:
					c.Categories = append(c.Categories, Allow(tagPrefix+v))
				}
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return DataSourceConfig{}, err
	}
	return c, nil
}

// eachField walks the fields of b, wrapping parse errors in ErrInvalidConfig.
func eachField(b []byte, fn func(pbz.Field) error) error {
	it := pbz.NewIterator(b)
	for it.Next() {
		if err := fn(it.Field()); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func narrow32(f pbz.Field, name string) (uint32, error) {
	v, err := safecast.Conv[uint32](f.Varint)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	return v, nil
}
