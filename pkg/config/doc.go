// Package config provides unified configuration management for storepulse.
//
// Every connector is configured through BaseConfig. Connector-specific
// properties live in Security.Credentials and are extracted into typed
// structs (AppStoreSourceConfig, SearchAdsSourceConfig, ...) when the
// connector initializes.
//
// # Loading
//
// A pipeline file names a source and a destination:
//
//	name: daily-downloads
//	source:
//	  name: appstore
//	  type: appstore
//	  security:
//	    credentials:
//	      key_id: ${ASC_KEY_ID}
//	      issuer_id: ${ASC_ISSUER_ID}
//	      key_path: /secrets/AuthKey.p8
//	      app_ids: "123456789"
//	      reports: App Downloads Detailed
//	      start_date: "2024-01-01"
//	destination:
//	  name: out
//	  type: json
//	  security:
//	    credentials:
//	      output_dir: ./out
//
// LoadPipeline substitutes ${VAR} references, then applies STOREPULSE_*
// environment overrides (STOREPULSE_SOURCE_SECURITY_CREDENTIALS_KEY_ID and
// so on) and finally fills defaults.
package config
