package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service. The mapstructure
// tags are used by Viper to unmarshal the data.
type Config struct {
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout   time.Duration `mapstructure:"etcd_timeout"`

	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`

	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`
	KafkaGroup   string `mapstructure:"kafka_group"`

	// Execution service (workflow runner).
	WorkflowBaseURL string `mapstructure:"workflow_base_url"`
	WorkflowToken   string `mapstructure:"workflow_token"`
	WorkflowRef     string `mapstructure:"workflow_ref"`

	// Ledger client.
	ChainRPCURL     string `mapstructure:"chain_rpc_url"`
	ChainID         int64  `mapstructure:"chain_id"`
	ChainPrivateKey string `mapstructure:"chain_private_key"`

	// Report delivery.
	ReportFrom string `mapstructure:"report_from"`
	ReportTo   string `mapstructure:"report_to"`

	// Orchestration knobs.
	RateLimit      int64         `mapstructure:"rate_limit"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	PollMaxWait    time.Duration `mapstructure:"poll_max_wait"`
	InterItemDelay time.Duration `mapstructure:"inter_item_delay"`
	// BatchDeadline bounds one whole batch; zero disables it.
	BatchDeadline time.Duration `mapstructure:"batch_deadline"`

	SessionTTL time.Duration `mapstructure:"session_ttl"`

	HttpListenAddr string `mapstructure:"http_listen_addr"`

	// Recurring batches fired by the elected leader.
	ScheduledBatches []ScheduledBatch `mapstructure:"scheduled_batches"`
}

// ScheduledBatch is a recurring batch definition from the config file.
type ScheduledBatch struct {
	Name          string      `mapstructure:"name"`
	CronExpr      string      `mapstructure:"cron_expr"`
	OperationKind string      `mapstructure:"operation_kind"`
	Recipients    []Recipient `mapstructure:"recipients"`
}

type Recipient struct {
	Address string `mapstructure:"address"`
	Amount  string `mapstructure:"amount"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetDefault("etcd_timeout", "5s")
	viper.SetDefault("redis_db", 0)
	viper.SetDefault("kafka_topic", "disburse.batches")
	viper.SetDefault("kafka_group", "disburse-workers")
	viper.SetDefault("rate_limit", 5)
	viper.SetDefault("settle_delay", "2s")
	viper.SetDefault("poll_interval", "3s")
	viper.SetDefault("poll_max_wait", "3m")
	viper.SetDefault("inter_item_delay", "4s")
	viper.SetDefault("batch_deadline", "0s")
	viper.SetDefault("session_ttl", "10m")
	viper.SetDefault("http_listen_addr", ":8080")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; rely on defaults and env vars.
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
