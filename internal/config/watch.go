// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package config

import (
	"fmt"

	"github.com/knadh/koanf/providers/file"

	"github.com/argus-sec/argus/internal/logging"
)

// Watch reloads the configuration whenever the config file changes and
// calls onChange with the fresh result. Reload errors are logged and
// the previous configuration stays in effect. The returned stop
// function ends the watch.
//
// Without a config file there is nothing to watch; Watch returns a
// no-op stop function.
func Watch(onChange func(*Config)) (func(), error) {
	path := findConfigFile()
	if path == "" {
		return func() {}, nil
	}

	f := file.Provider(path)
	err := f.Watch(func(event any, err error) {
		if err != nil {
			logging.Error().Err(err).Str("path", path).Msg("config watch error")
			return
		}

		cfg, err := Load()
		if err != nil {
			logging.Error().Err(err).Str("path", path).Msg("config reload failed, keeping previous configuration")
			return
		}

		logging.Info().Str("path", path).Msg("configuration reloaded")
		onChange(cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("watch config file %s: %w", path, err)
	}

	return func() {
		if err := f.Unwatch(); err != nil {
			logging.Warn().Err(err).Msg("failed to stop config watch")
		}
	}, nil
}
