package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Schema  SchemaConfig
	Convert ConvertConfig
	Cache   CacheConfig
	Sampler SamplerConfig
	Catalog CatalogConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// SchemaConfig names the trace header bytes carrying the spatial index.
// Byte positions are 1-based, SEG-Y rev1 standard placement by default.
type SchemaConfig struct {
	InlineByte    int
	CrosslineByte int
}

type ConvertConfig struct {
	// ChunkShape is (inline, crossline, depth) cells per chunk.
	ChunkInlines    int
	ChunkCrosslines int
	ChunkDepth      int
	Compression     string // "snappy" or "none"
	// LengthPolicy is what to do with traces whose sample count differs
	// from the declared count: "pad", "truncate" or "reject". There is no
	// silent default beyond this explicit setting.
	LengthPolicy string
	// Workers bounds concurrent cube conversions in a batch.
	Workers int
}

type CacheConfig struct {
	// CapacityChunks bounds the in-process LRU chunk cache.
	CapacityChunks int
	// Redis enables a remote second cache tier, consulted on local miss.
	RedisEnabled  bool
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	RedisTTLSec   int
}

type SamplerConfig struct {
	Seed      int64
	Frequency int
}

type CatalogConfig struct {
	Path string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	// ConvertPerMinute rate-limits conversion requests per client.
	ConvertPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/seisvol")

	viper.SetEnvPrefix("SEISVOL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("schema.inlineByte", 189)
	viper.SetDefault("schema.crosslineByte", 193)

	viper.SetDefault("convert.chunkInlines", 8)
	viper.SetDefault("convert.chunkCrosslines", 64)
	viper.SetDefault("convert.chunkDepth", 64)
	viper.SetDefault("convert.compression", "snappy")
	viper.SetDefault("convert.lengthPolicy", "reject")
	viper.SetDefault("convert.workers", 2)

	viper.SetDefault("cache.capacityChunks", 256)
	viper.SetDefault("cache.redisEnabled", false)
	viper.SetDefault("cache.redisHost", "localhost")
	viper.SetDefault("cache.redisPort", 6379)
	viper.SetDefault("cache.redisDB", 0)
	viper.SetDefault("cache.redisTTLSec", 3600)

	viper.SetDefault("sampler.seed", 0)
	viper.SetDefault("sampler.frequency", 10)

	viper.SetDefault("catalog.path", "./data/catalog.db")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.convertPerMinute", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
