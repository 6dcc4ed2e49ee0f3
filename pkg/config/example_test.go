package config_test

import (
	"fmt"
	"log"
	"time"

	"github.com/ajitpratap0/storepulse/pkg/config"
)

// ExampleNewBaseConfig demonstrates creating a new base configuration
// with default values.
func ExampleNewBaseConfig() {
	cfg := config.NewBaseConfig("appstore", "appstore")

	fmt.Printf("Batch Size: %d\n", cfg.Performance.BatchSize)
	fmt.Printf("Connection Timeout: %s\n", cfg.Timeouts.Connection)
	fmt.Printf("Request Timeout: %s\n", cfg.Timeouts.Request)

	// Output:
	// Batch Size: 1000
	// Connection Timeout: 10s
	// Request Timeout: 1m0s
}

// ExampleBaseConfig_Validate shows how to validate a configuration
// before using it.
func ExampleBaseConfig_Validate() {
	cfg := config.NewBaseConfig("warehouse", "s3")
	cfg.Performance.BatchSize = 10000
	cfg.Timeouts.Request = 2 * time.Minute

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("Configuration is valid!")

	// Output:
	// Configuration is valid!
}

// ExampleAppStoreSourceConfigFrom shows how a source turns the generic
// credentials map into its typed configuration.
func ExampleAppStoreSourceConfigFrom() {
	base := config.NewBaseConfig("appstore", "appstore")
	base.Security.Credentials["key_id"] = "ABC123"
	base.Security.Credentials["issuer_id"] = "issuer"
	base.Security.Credentials["key_path"] = "/secrets/AuthKey.p8"
	base.Security.Credentials["app_ids"] = "123, 456"
	base.Security.Credentials["start_date"] = "2024-01-02"

	cfg, err := config.AppStoreSourceConfigFrom(base)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(cfg.AppIDs)
	fmt.Println(cfg.StartDate.Format(config.DateLayout))

	// Output:
	// [123 456]
	// 2024-01-02
}
