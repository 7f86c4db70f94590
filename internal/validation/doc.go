// Adfetch - Ad Platform Fetch Scheduling and Rate Limiting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adfetch

// Package validation holds the process-wide go-playground validator and turns
// its errors into readable messages.
//
// The same rules are enforced at every entry point: configuration files,
// settings restored from a snapshot, and settings patches over HTTP. Fields
// are reported by their koanf/json key:
//
//	if verr := validation.ValidateStruct(&settings); verr != nil {
//	    return fmt.Errorf("invalid settings: %w", verr)
//	}
//
// ValidateStruct returns a concrete *RequestValidationError, so check it
// against nil before assigning it to an error.
package validation
