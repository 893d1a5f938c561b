package config

type (
	// NotifierConfig controls where client lifecycle events are published
	NotifierConfig struct {
		Type       string      `yaml:"type"`        // none, log, redis
		BufferSize int         `yaml:"buffer_size"` // pending events before new ones are dropped
		Redis      RedisConfig `yaml:"redis"`
	}

	// RedisConfig represents the configuration for Redis-based notifier
	RedisConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel, cluster
		Addr        string `yaml:"addr"`         // multiple addresses separated by ',' or ';'
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Stream      string `yaml:"stream"`
		MaxLen      int64  `yaml:"max_len"`
	}
)

const (
	RedisClusterTypeSingle   = "single"
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
)
