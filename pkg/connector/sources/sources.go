// Package sources provides factory functions for all source connectors
package sources

import (
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/connector/sources/appstore"
	"github.com/ajitpratap0/storepulse/pkg/connector/sources/searchads"
)

// NewAppStoreSource creates a new App Store Connect analytics source connector
func NewAppStoreSource(name string, config *config.BaseConfig) (core.Source, error) {
	return appstore.NewSource(name, config)
}

// NewSearchAdsSource creates a new search ads reporting source connector
func NewSearchAdsSource(name string, config *config.BaseConfig) (core.Source, error) {
	return searchads.NewSource(name, config)
}
