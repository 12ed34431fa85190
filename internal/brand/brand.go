// Package brand holds the product identity loaded from the embedded brand.json.
// Paths and names used across the panel come from here so a packager can
// rename the product without touching code.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name               string `json:"name"`
	LowerName          string `json:"lowerName"`
	Vendor             string `json:"vendor"`
	Website            string `json:"website"`
	Repository         string `json:"repository"`
	Description        string `json:"description"`
	Tagline            string `json:"tagline"`
	ConfigEnvPrefix    string `json:"configEnvPrefix"`
	DefaultConfigDir   string `json:"defaultConfigDir"`
	DefaultStateDir    string `json:"defaultStateDir"`
	DefaultCustomerDir string `json:"defaultCustomerDir"`
	BinaryName         string `json:"binaryName"`
	ServiceName        string `json:"serviceName"`
	ConfigFileName     string `json:"configFileName"`
	DatabaseFileName   string `json:"databaseFileName"`
	UpdateURI          string `json:"updateURI"`
	Copyright          string `json:"copyright"`
	License            string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Vendor = b.Vendor
	Website = b.Website
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultCustomerDir = b.DefaultCustomerDir
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
	DatabaseFileName = b.DatabaseFileName
	UpdateURI = b.UpdateURI
}

var (
	Name               string
	LowerName          string
	Vendor             string
	Website            string
	Description        string
	ConfigEnvPrefix    string
	DefaultConfigDir   string
	DefaultStateDir    string
	DefaultCustomerDir string
	BinaryName         string
	ConfigFileName     string
	DatabaseFileName   string
	UpdateURI          string

	// Version is set at build time via -ldflags
	Version   = "2.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for outgoing HTTP requests.
func UserAgent(version string) string {
	if version == "" {
		version = Version
	}
	return Name + "/" + version
}

// GetStateDir returns the state directory.
// Priority: HEARTH_STATE_DIR > HEARTH_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	return dirFromEnv("_STATE_DIR", "state", DefaultStateDir)
}

// GetConfigDir returns the config directory.
// Priority: HEARTH_CONFIG_DIR > HEARTH_PREFIX/config > DefaultConfigDir
func GetConfigDir() string {
	return dirFromEnv("_CONFIG_DIR", "config", DefaultConfigDir)
}

// DefaultConfigPath is the config file the CLI falls back to.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}

// DefaultDatabasePath is the SQLite file used when the config names none.
func DefaultDatabasePath() string {
	return filepath.Join(GetStateDir(), DatabaseFileName)
}

func dirFromEnv(suffix, sub, fallback string) string {
	if dir := os.Getenv(ConfigEnvPrefix + suffix); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return fallback
}
