// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package config loads the validator configuration from JSON or YAML files
// and assembles the runtime collaborators (loader, revocation sources,
// response cache, trust sources, metrics) a validation run needs.
//
// The file path comes from the caller or from the ADES_VALIDATOR_CONFIG
// environment variable. Defaults are applied before the file is read, so a
// file only has to name the values it changes.
package config
