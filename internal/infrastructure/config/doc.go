// Package config loads and validates Appliance Link configuration.
//
// Configuration is sourced in layers: hardcoded defaults, then a YAML
// file, then APPLIANCELINK_* environment variables. The result is
// validated once at startup; components receive typed sub-structs and
// never read the environment themselves.
//
// Device identity (root topic + serial number + credentials) has no
// defaults on purpose: a misconfigured identity would silently subscribe
// to the wrong appliance's topics.
package config
