// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log wraps zap with the global, package-level convenience functions
// used throughout this module, and a Config for constructing the process's
// root logger.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines the configuration for the global logger.
type Config struct {
	Level     string `yaml:"level"`
	Disable   bool   `yaml:"disable"`
	Verbose   bool   `yaml:"verbose"`
	OutputDir string `yaml:"output_dir"`
}

func (c Config) applyDefaults() Config {
	if c.Level == "" {
		c.Level = "info"
	}
	return c
}

func (c Config) level() zapcore.Level {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(c.Level)); err != nil {
		return zapcore.InfoLevel
	}
	return l
}

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger = zap.NewNop().Sugar()
)

// New creates a new zap.Logger from config. Extra fields, if any, are
// attached to every entry the logger writes. Passing nil fields is valid.
func New(config Config, fields map[string]interface{}) (*zap.Logger, error) {
	config = config.applyDefaults()

	if config.Disable {
		return zap.NewNop(), nil
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(config.level())
	if config.Verbose {
		zc.Development = true
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		l = l.With(zap.Any(k, v))
	}
	return l, nil
}

// SetGlobalLogger installs l as the logger backing the package-level
// convenience functions below.
func SetGlobalLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l.Sugar()
}

func sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Debug logs at debug level.
func Debug(args ...interface{}) { sugar().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(template string, args ...interface{}) { sugar().Debugf(template, args...) }

// Info logs at info level.
func Info(args ...interface{}) { sugar().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(template string, args ...interface{}) { sugar().Infof(template, args...) }

// Warn logs at warn level.
func Warn(args ...interface{}) { sugar().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(template string, args ...interface{}) { sugar().Warnf(template, args...) }

// Error logs at error level.
func Error(args ...interface{}) { sugar().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(template string, args ...interface{}) { sugar().Errorf(template, args...) }

// With returns a SugaredLogger with structured context, mirroring the
// `log.With(k, v, ...)` call sites used throughout this module.
func With(args ...interface{}) *zap.SugaredLogger {
	return sugar().With(args...)
}
