// Package destinations provides factory functions for all destination connectors
package destinations

import (
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/connector/destinations/json"
	"github.com/ajitpratap0/storepulse/pkg/connector/destinations/s3"
)

// NewJSONDestination creates a new JSON lines destination connector
func NewJSONDestination(name string, config *config.BaseConfig) (core.Destination, error) {
	return json.NewDestination(name, config)
}

// NewS3Destination creates a new S3 destination connector
func NewS3Destination(name string, config *config.BaseConfig) (core.Destination, error) {
	return s3.NewDestination(name, config)
}
