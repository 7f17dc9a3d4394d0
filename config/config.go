package config

import (
	"log"

	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	StoragePath          string `mapstructure:"storage_path"`
	MetadataPath         string `mapstructure:"metadata_path"`
	DownloadPath         string `mapstructure:"download_path"`
	QuotaBytes           int64  `mapstructure:"quota_bytes"`
	MemoryThreshold      int64  `mapstructure:"memory_threshold"`
	PieceLength          int64  `mapstructure:"piece_length"`
	CompressMemoryChunks bool   `mapstructure:"compress_memory_chunks"`
	Debug                bool   `mapstructure:"debug"`
}

var Config *AppConfig

func LoadConfig(path string) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(path)
	viper.AutomaticEnv()

	viper.SetDefault("storage_path", "./data/buffers")
	viper.SetDefault("metadata_path", "./data/metadata")
	viper.SetDefault("download_path", "./downloads")
	viper.SetDefault("quota_bytes", int64(0))
	viper.SetDefault("memory_threshold", int64(500*1024*1024))
	viper.SetDefault("piece_length", int64(1*1024*1024))
	viper.SetDefault("compress_memory_chunks", false)
	viper.SetDefault("debug", false)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("⚠️ Could not read config file, using defaults: %v", err)
	}

	var appConfig AppConfig
	if err := viper.Unmarshal(&appConfig); err != nil {
		log.Fatalf("❌ Unable to decode config into struct: %v", err)
	}

	Config = &appConfig
}
