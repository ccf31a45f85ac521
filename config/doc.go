// Package config provides configuration loading for the memflow engine:
// defaults, YAML files, environment overrides, startup validation, and hot
// reload of tunable policy values.
package config
