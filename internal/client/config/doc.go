// Package config loads runtime configuration for the portal and authctl.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via flags: -c or -config.
//  3. Environment: a dotenv file (-env-file, or ./.env) loaded with
//     godotenv, then SESSIONKEEPER_* variables read with envconfig.
//  4. Command-line flags (see parseFlags), which override everything.
//
// # JSON schema
//
// Durations use timex.Duration, so values can be either strings like "3s"
// or integer nanoseconds:
//
//	{
//	  "backend_url": "https://abcd.supabase.co",
//	  "anon_key": "...",
//	  "project_ref": "abcd",
//	  "identity_timeout": "6s",
//	  "retry_base_delay": "800ms",
//	  "public_paths": ["/", "/login", "/about"]
//	}
//
// The Session, Recovery, Refresh and Roles methods hand each component its
// slice of the settings.
package config
