// Package config holds the engine's immutable, process-lifetime
// configuration (spec §6). Loading the file, overlaying env vars, and
// flag parsing are external-layer concerns; this package only defines the
// typed value and a thin JSON loader used by tests and the cmd entrypoint.
package config

import (
	"os"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type Flush struct {
	MemtableCapacity int `json:"memtable_capacity"`
	Parallelism      int `json:"parallelism"`
}

type Engine struct {
	DataDir      string `json:"data_dir"`
	EventPerZone int    `json:"event_per_zone"`
	Flush        Flush  `json:"flush"`
}

type Server struct {
	TCPAddr string `json:"tcp_addr"`
	WSAddr  string `json:"ws_addr"`
}

type Logging struct {
	Level string `json:"level"`
}

type Time struct {
	Timezone           string `json:"timezone"`
	WeekStart          string `json:"week_start"`
	UseCalendarBucketing bool `json:"use_calendar_bucketing"`
}

// Config is immutable once constructed; readers may hold a pointer
// indefinitely without synchronization (cmn/rom.go's read-mostly idiom).
type Config struct {
	Engine  Engine  `json:"engine"`
	Server  Server  `json:"server"`
	Logging Logging `json:"logging"`
	Time    Time    `json:"time"`
}

// Default mirrors the values a fresh shard is constructed with in tests.
func Default() *Config {
	return &Config{
		Engine: Engine{
			DataDir:      "./data",
			EventPerZone: 8192,
			Flush: Flush{
				MemtableCapacity: 50_000,
				Parallelism:      2,
			},
		},
		Server: Server{TCPAddr: "127.0.0.1:9700", WSAddr: "127.0.0.1:9701"},
		Logging: Logging{Level: "info"},
		Time: Time{
			Timezone:             "UTC",
			WeekStart:            "monday",
			UseCalendarBucketing: true,
		},
	}
}

// Load parses JSON bytes into a new immutable Config, seeding any unset
// fields from Default.
func Load(data []byte) (*Config, error) {
	cfg := Default()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := jsonAPI.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is a convenience wrapper used by cmd/sneldbd.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return Load(data)
}
