package s3

import (
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(ConnectorName, "JSON lines objects in S3 partitioned by table and date", func(cfg *config.BaseConfig) (core.Destination, error) {
		name := ConnectorName
		if cfg != nil && cfg.Name != "" {
			name = cfg.Name
		}
		return NewDestination(name, cfg)
	})
}
