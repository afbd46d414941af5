// Package config loads the toolbox daemon configuration from a JSON file with
// environment overrides, and fills defaults for every optional section.
package config
