package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// sampleCredentials seeds the generated file with the properties each
// connector reads, pointing secrets at environment variables.
var sampleCredentials = map[string]map[string]string{
	"appstore": {
		"key_id":     "${ASC_KEY_ID}",
		"issuer_id":  "${ASC_ISSUER_ID}",
		"key_path":   "${ASC_KEY_PATH}",
		"app_ids":    "123456789",
		"start_date": "2024-01-01",
	},
	"searchads": {
		"developer_token": "${ADS_DEVELOPER_TOKEN}",
		"client_id":       "${ADS_CLIENT_ID}",
		"client_secret":   "${ADS_CLIENT_SECRET}",
		"refresh_token":   "${ADS_REFRESH_TOKEN}",
		"customer_ids":    "1234567890",
		"start_date":      "2024-01-01",
	},
	"json": {
		"output_dir": "./out",
	},
	"s3": {
		"bucket": "${S3_BUCKET}",
		"region": "us-east-1",
		"prefix": "storepulse",
	},
}

func newInitCommand() *cobra.Command {
	var output, source, destination string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample pipeline file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return errors.Newf(errors.ErrorTypeConflict, "%s already exists (use --force to overwrite)", output)
			}
			cfg, err := samplePipeline(source, destination)
			if err != nil {
				return err
			}
			if err := config.Save(output, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "pipeline.yaml", "File to write")
	cmd.Flags().StringVar(&source, "source", "appstore", "Source connector type")
	cmd.Flags().StringVar(&destination, "destination", "json", "Destination connector type")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func samplePipeline(source, destination string) (*config.PipelineConfig, error) {
	src, ok := sampleCredentials[source]
	if !ok || (source != "appstore" && source != "searchads") {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown source %q", source)
	}
	dst, ok := sampleCredentials[destination]
	if !ok || (destination != "json" && destination != "s3") {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unknown destination %q", destination)
	}

	cfg := &config.PipelineConfig{
		Name:        source + "-to-" + destination,
		Source:      *config.NewBaseConfig(source, source),
		Destination: *config.NewBaseConfig(destination, destination),
	}
	for k, v := range src {
		cfg.Source.Security.Credentials[k] = v
	}
	for k, v := range dst {
		cfg.Destination.Security.Credentials[k] = v
	}
	return cfg, nil
}
