// Package config loads and validates LabGate Core configuration.
//
// Configuration is read from a YAML file, with environment variable
// overrides for deployment-specific values and secrets:
//
//	cfg, err := config.Load("configs/config.yaml")
//
// # Loading order
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variables (LABGATE_DATABASE_PATH, LABGATE_JWT_SECRET,
//     LABGATE_MQTT_PASSWORD, LABGATE_INFLUXDB_TOKEN, ...)
//
// Validate() runs as part of Load() and rejects configurations that would
// be unsafe in production, such as a missing or short JWT secret.
package config
