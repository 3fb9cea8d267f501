// Package config handles loading and validating the Felshare bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with FELSHARE_* environment variables
//   - Validation of required fields
//
// The cloud account password and the API JWT secret should be supplied
// through the environment rather than the config file.
//
// Usage:
//
//	cfg, err := config.Load("configs/felshare.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config
