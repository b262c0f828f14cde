// Package config defines the service configuration schema and its loader.
package config
