package config

import (
	"fmt"
	"strings"

	"photo-compressor-go/internal/archive"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/settings"

	"github.com/spf13/viper"
)

// Config represents the main configuration structure
type Config struct {
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	Compression         CompressionConfig `mapstructure:"compression"`
	Archive             ArchiveConfig     `mapstructure:"archive"`
	Server              ServerConfig      `mapstructure:"server"`
	Logging             LoggingConfig     `mapstructure:"logging"`
}

// CompressionConfig contains the initial compression settings
type CompressionConfig struct {
	Quality      float64 `mapstructure:"quality"`
	MaxDimension int     `mapstructure:"max_dimension"`
	GroupSize    int     `mapstructure:"group_size"`
	Scheduling   string  `mapstructure:"scheduling"`
}

// ArchiveConfig contains archive output settings
type ArchiveConfig struct {
	Filename string `mapstructure:"filename"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Port        int `mapstructure:"port"`
	MaxUploadMB int `mapstructure:"max_upload_mb"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif",
		},
		Compression: CompressionConfig{
			Quality:      settings.DefaultQuality,
			MaxDimension: settings.DefaultMaxDimension,
			GroupSize:    compressor.DefaultGroupSize,
			Scheduling:   string(compressor.SchedulingGroups),
		},
		Archive: ArchiveConfig{
			Filename: archive.DefaultFilename,
		},
		Server: ServerConfig{
			Port:        8080,
			MaxUploadMB: 256,
		},
		Logging: LoggingConfig{
			Level:      "info",
			FilePath:   "photo-compressor.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config file in current directory and home directory
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.photo-compressor")
		v.AddConfigPath("/etc/photo-compressor")
	}

	// Enable environment variable support
	v.SetEnvPrefix("PHOTO_COMPRESSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// bindEnv registers nested keys so AutomaticEnv overrides reach Unmarshal
// even when no config file sets them.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"compression.quality",
		"compression.max_dimension",
		"compression.group_size",
		"compression.scheduling",
		"archive.filename",
		"server.port",
		"server.max_upload_mb",
		"logging.level",
		"logging.file_path",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	q := c.Compression.Quality
	if q < settings.MinQuality || q > settings.MaxQuality {
		return fmt.Errorf("invalid quality: %v (valid: %.2f-%.2f)", q, settings.MinQuality, settings.MaxQuality)
	}
	if c.Compression.MaxDimension <= 0 {
		c.Compression.MaxDimension = settings.DefaultMaxDimension
	}
	if c.Compression.GroupSize <= 0 {
		c.Compression.GroupSize = compressor.DefaultGroupSize
	}
	scheduling, err := compressor.ParseScheduling(c.Compression.Scheduling)
	if err != nil {
		return err
	}
	c.Compression.Scheduling = string(scheduling)

	if c.Archive.Filename == "" {
		c.Archive.Filename = archive.DefaultFilename
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 256
	}

	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

// IsImageExtension checks if the extension is a supported image extension
func (c *Config) IsImageExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supportedExt := range c.SupportedExtensions {
		if ext == supportedExt {
			return true
		}
	}
	return false
}

// CompressorConfig returns the compressor tuning derived from the config
func (c *Config) CompressorConfig() compressor.Config {
	return compressor.Config{
		GroupSize:  c.Compression.GroupSize,
		Scheduling: compressor.Scheduling(c.Compression.Scheduling),
	}
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
