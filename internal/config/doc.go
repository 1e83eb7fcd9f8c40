// Package config loads the YAML configuration shared by the bidding binaries.
//
// Values may reference environment variables as ${VAR}; they are expanded
// before parsing, which keeps API keys and database passwords out of the file.
package config
