package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/zoobzio/probez"
)

// defaultConfig records every track event category into a 4MB ring buffer.
func defaultConfig() probez.SessionConfig {
	return probez.SessionConfig{
		BufferSizeKB: 4096,
		FillPolicy:   probez.FillRingBuffer,
		DataSources:  []probez.DataSourceConfig{{Name: probez.TrackEventDataSourceName}},
	}
}

// loadConfig reads a TOML session config. An empty path yields
// defaultConfig. Keys the config does not know are an error so typos do
// not silently record nothing.
func loadConfig(path string) (probez.SessionConfig, error) {
	if path == "" {
		return defaultConfig(), nil
	}
	var cfg probez.SessionConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if len(cfg.DataSources) == 0 {
		return cfg, fmt.Errorf("config %s: no [[data_source]] enabled", path)
	}
	return cfg, nil
}
