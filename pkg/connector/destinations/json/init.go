package json

import (
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination(ConnectorName, "JSON lines files, one per table", func(cfg *config.BaseConfig) (core.Destination, error) {
		name := ConnectorName
		if cfg != nil && cfg.Name != "" {
			name = cfg.Name
		}
		return NewDestination(name, cfg)
	})
}
