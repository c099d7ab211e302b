// Package config handles configuration loading for openclaw-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults; the
// gateway runs without a config file at all.
//
// # Configuration File
//
// Default location: ~/.config/openclaw/gateway.yaml (or under
// XDG_CONFIG_HOME when set).
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_secret: "${OPENCLAW_TOKEN_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  ttl: "168h"
//	  persist_delay: "2s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  listen_addr: "127.0.0.1:8080"
//	  trusted_proxies:
//	    - "10.0.0.0/8"
//
// Storage:
//
//	storage:
//	  data_dir: "/var/lib/openclaw"        # sessions, keys
//	  database_path: ""                    # default {data_dir}/gateway.db
//
// Authentication:
//
//	auth:
//	  token_secret: "${OPENCLAW_TOKEN_SECRET}"  # >= 32 chars when set
//	  totp_issuer: "OpenClaw Gateway"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Trusted proxy entries parse as CIDR prefixes
//   - Token secret minimum length (32 bytes) when set
//   - Duration format validity and positivity
//   - Logging level and format values
package config
