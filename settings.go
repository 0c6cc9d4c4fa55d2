/*
 * SPDX-FileCopyrightText: Copyright (c) 2024 The provides authors. All rights reserved.
 * SPDX-License-Identifier: Apache-2.0
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package provides

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognized by LoadSettings.
const (
	envLogLevel = "PROVIDES_LOG_LEVEL"
	envStrict   = "PROVIDES_STRICT"
	envTiming   = "PROVIDES_TIMING"
)

// Settings carries process-level extension configuration read from the
// environment.
type Settings struct {
	// LogLevel is the minimum level of extension logging.
	LogLevel slog.Level

	// Strict promotes skippable discovery issues to errors.
	Strict bool

	// Timing enables timing spans around discovery runs.
	Timing bool
}

// LoadSettings reads settings from the environment, merging variables
// from the given dotenv files first. Missing files are ignored so a
// plain environment works without any of them.
func LoadSettings(files ...string) Settings {
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			// Existing process environment wins over file values.
			_ = godotenv.Load(file)
		}
	}

	return Settings{
		LogLevel: parseLogLevel(os.Getenv(envLogLevel)),
		Strict:   parseBool(os.Getenv(envStrict)),
		Timing:   parseBool(os.Getenv(envTiming)),
	}
}

// Logger returns a text logger honoring the configured level.
func (s Settings) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: s.LogLevel,
	}))
}

// parseLogLevel maps a level name to a slog level, defaulting to info.
func parseLogLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseBool accepts the usual boolean spellings, defaulting to false.
func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}
