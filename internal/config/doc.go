// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Zero values are replaced by defaults before validation, so a minimal file
// only needs instance.id and a provider.
package config
