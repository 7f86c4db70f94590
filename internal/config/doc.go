// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

/*
Package config loads adfetch configuration with koanf.

Layers, lowest precedence first:

 1. Struct defaults (defaultConfig)
 2. YAML file: $ADFETCH_CONFIG, else the first of DefaultConfigPaths that exists
 3. Environment variables through an explicit mapping table

Environment variables are flat and unprefixed (HTTP_PORT, STORE_BACKEND,
MANUAL_COOLDOWN, NATS_ENABLED...). Durations take Go syntax ("90m").
CORS_ORIGINS and WS_ALLOWED_ORIGINS are comma-separated. Bearer tokens for
the HTTP delegate are read from DELEGATE_TOKEN_<PLATFORM>, for example
DELEGATE_TOKEN_GOOGLE_ADS.

The platform table can only be replaced from YAML:

	platforms:
	  - key: google_ads
	    name: Google Ads
	    base_url: https://ads.example.com/google/
	    interval: 4h
	    max_requests_per_day: 24
	    max_requests_per_hour: 4
	    backoff_multiplier: 2
	    jitter_range: 15m
	    priority: high
	    endpoints: [campaigns, metrics]

A YAML list replaces the built-in table entirely.

Validation combines validator tags on each section with cross-field checks:
unique platform keys, hourly caps not above daily caps, tokens only for known
platforms, and backend-specific store and NATS requirements.
*/
package config
