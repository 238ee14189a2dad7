// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides TOML configuration loading for cascadeflow.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (CASCADEFLOW_*)
//   - ~/.cascadeflow/config.toml
//   - ~/.cascadeflow/config.json
//   - Built-in defaults
//
// A Watcher can reload the file on change; a reload that fails to parse or
// validate is logged and skipped, so a half-saved file never takes down a
// running engine.
package config
