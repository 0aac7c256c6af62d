// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Pdf           PdfConfig           `mapstructure:"pdf"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	RecordSync    RecordSyncConfig    `mapstructure:"record_sync"`
	Watcher       WatcherConfig       `mapstructure:"watcher"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置，用于 Word 文档的文本提取。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// PdfConfig 存储 PDF 解析相关的配置。
type PdfConfig struct {
	LicenseKey string `mapstructure:"license_key"`
}

// ElasticsearchConfig 存储 Elasticsearch 向量索引相关的配置。
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	DocIndex    string `mapstructure:"doc_index"`
	RecordIndex string `mapstructure:"record_index"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// IngestConfig 存储文档摄取管道相关的配置。
type IngestConfig struct {
	// BatchSize 是每次向量化并写入索引的分块数量。
	BatchSize int `mapstructure:"batch_size"`
	// MaxChunkChars 是无段落结构文本回退切块的最大字符数。
	MaxChunkChars int `mapstructure:"max_chunk_chars"`
	// DownloadRetries 与 DownloadRetryDelayMs 处理摄取任务与上传写入之间的竞争。
	DownloadRetries      int `mapstructure:"download_retries"`
	DownloadRetryDelayMs int `mapstructure:"download_retry_delay_ms"`
}

// RetrievalConfig 存储查询/检索管道相关的配置。
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
	// QueryPrefixes 是需要剥离的口语化前缀列表。
	QueryPrefixes []string `mapstructure:"query_prefixes"`
	// HeadingPattern 是摘录边界的标题匹配正则，文档标题习惯不同时可调整。
	HeadingPattern string `mapstructure:"heading_pattern"`
}

// RecordSyncConfig 存储医院业务记录向量同步任务的配置。
type RecordSyncConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	WatermarkKey    string `mapstructure:"watermark_key"`
}

// WatcherConfig 存储本地导入目录监听的配置。
type WatcherConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// applyDefaults 为未配置的管道参数填充默认值。
func applyDefaults() {
	if Conf.Ingest.BatchSize <= 0 {
		Conf.Ingest.BatchSize = 5
	}
	if Conf.Ingest.MaxChunkChars <= 0 {
		Conf.Ingest.MaxChunkChars = 800
	}
	if Conf.Ingest.DownloadRetries <= 0 {
		Conf.Ingest.DownloadRetries = 3
	}
	if Conf.Ingest.DownloadRetryDelayMs <= 0 {
		Conf.Ingest.DownloadRetryDelayMs = 100
	}
	if Conf.Retrieval.TopK <= 0 {
		Conf.Retrieval.TopK = 3
	}
	if len(Conf.Retrieval.QueryPrefixes) == 0 {
		Conf.Retrieval.QueryPrefixes = []string{"get me the paragraph"}
	}
	if Conf.Retrieval.HeadingPattern == "" {
		Conf.Retrieval.HeadingPattern = `\r?\n\d+(?:\.\d+)*\s+`
	}
	if Conf.Embedding.Dimensions <= 0 {
		Conf.Embedding.Dimensions = 1024
	}
	if Conf.RecordSync.IntervalMinutes <= 0 {
		Conf.RecordSync.IntervalMinutes = 10
	}
	if Conf.RecordSync.WatermarkKey == "" {
		Conf.RecordSync.WatermarkKey = "record_sync:last_checked"
	}
}
