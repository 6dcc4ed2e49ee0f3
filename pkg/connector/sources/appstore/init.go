package appstore

import (
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource(ConnectorName, "App Store Connect analytics reports", func(cfg *config.BaseConfig) (core.Source, error) {
		name := ConnectorName
		if cfg != nil && cfg.Name != "" {
			name = cfg.Name
		}
		return NewSource(name, cfg)
	})
}
