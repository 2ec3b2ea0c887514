// Package config loads and validates the Carlos server configuration.
//
// Configuration is primarily file based (config.yaml). Database
// credentials can additionally be supplied through CARLOS_DB_*
// environment variables so that deployments can keep secrets out of
// the config file. Environment values win over YAML values.
package config
