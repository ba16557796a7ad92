package transport

import "bessmon/internal/config"

func brokerConfig(kind string) config.BrokerConfig {
	cfg := config.DefaultConfig().Broker
	cfg.Kind = kind
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	return cfg
}
