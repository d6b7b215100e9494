// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// An optional .env file can be loaded first to populate those variables.
// See configs/wsfeed.example.yaml for the full schema.
package config
