// Package config loads tool settings from an optional oldmaps.yaml and
// OLDMAPS_* environment variables.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// OLDMAPS_IMAGING_QUALITY.
const EnvPrefix = "OLDMAPS"

// ImagingConfig holds the resize and re-encode settings.
type ImagingConfig struct {
	Delegate      string `mapstructure:"delegate"` // "magick" or "native"
	MagickBinary  string `mapstructure:"magick_binary"`
	MaxDimension  int    `mapstructure:"max_dimension"`
	// ResizeQuality is the starting JPEG quality of natively resized files.
	ResizeQuality int    `mapstructure:"resize_quality"`
	Format        string `mapstructure:"format"`
	Quality       int    `mapstructure:"quality"`
	Pattern       string `mapstructure:"pattern"`
	ReuseExisting bool   `mapstructure:"reuse_existing"`
}

// GeodataConfig holds Overpass settings.
type GeodataConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Key      string        `mapstructure:"key"`
}

// TilingConfig holds gdal2tiles settings.
type TilingConfig struct {
	Binary     string `mapstructure:"binary"`
	MinZoom    int    `mapstructure:"min_zoom"`
	MaxZoom    int    `mapstructure:"max_zoom"`
	Resampling string `mapstructure:"resampling"`
	Profile    string `mapstructure:"profile"`
	WebViewer  string `mapstructure:"web_viewer"`
	XYZ        bool   `mapstructure:"xyz"`
	Processes  int    `mapstructure:"processes"`
}

// PublishConfig holds upload settings.
type PublishConfig struct {
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
}

// WebmapConfig holds defaults for the generated page.
type WebmapConfig struct {
	Attribution string `mapstructure:"attribution"`
	Basemap     bool   `mapstructure:"basemap"`
}

// Config holds all configuration for the tool.
type Config struct {
	Imaging ImagingConfig `mapstructure:"imaging"`
	Geodata GeodataConfig `mapstructure:"geodata"`
	Tiling  TilingConfig  `mapstructure:"tiling"`
	Publish PublishConfig `mapstructure:"publish"`
	Webmap  WebmapConfig  `mapstructure:"webmap"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("imaging.delegate", "magick")
	v.SetDefault("imaging.magick_binary", "magick")
	v.SetDefault("imaging.max_dimension", 1000)
	v.SetDefault("imaging.resize_quality", 90)
	v.SetDefault("imaging.format", "jpeg")
	v.SetDefault("imaging.quality", 75)
	v.SetDefault("imaging.pattern", `\.(jpg|tif)$`)
	v.SetDefault("imaging.reuse_existing", false)

	v.SetDefault("geodata.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("geodata.timeout", 3*time.Minute)
	v.SetDefault("geodata.key", "boundary")

	v.SetDefault("tiling.binary", "gdal2tiles.py")
	v.SetDefault("tiling.min_zoom", 10)
	v.SetDefault("tiling.max_zoom", 18)
	v.SetDefault("tiling.resampling", "average")
	v.SetDefault("tiling.profile", "mercator")
	v.SetDefault("tiling.web_viewer", "leaflet")
	v.SetDefault("tiling.xyz", false)
	v.SetDefault("tiling.processes", 1)

	v.SetDefault("publish.workers", 8)
	v.SetDefault("publish.batch_size", 100)

	v.SetDefault("webmap.attribution", "")
	v.SetDefault("webmap.basemap", true)
}

// Load reads configuration from path, or from oldmaps.yaml in the working
// directory when path is empty. A missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("oldmaps")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
