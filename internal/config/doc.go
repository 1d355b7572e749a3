// SPDX-License-Identifier: MIT

// Package config provides configuration management for epgsync.
//
// Configuration is resolved with the precedence ENV > YAML file > defaults
// and validated before it is handed to the sync pipeline.
package config
