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

// Package config loads ports.Settings (and the nested picker/connmgr
// Configs) from YAML, the way a host binary assembles a torrent's runtime
// tunables from on-disk configuration layers.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads filename and unmarshals it into out, which must be a pointer.
func Load(filename string, out interface{}) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("config: unmarshal %s: %w", filename, err)
	}
	return nil
}

// LoadFiles applies each file in filenames to out in order, so later files
// override fields set by earlier ones. Every file is a complete YAML
// document for out's type; fields a later file omits keep the value an
// earlier file set, since yaml.Unmarshal only overwrites keys present in the
// document.
func LoadFiles(out interface{}, filenames []string) error {
	for _, f := range filenames {
		if err := Load(f, out); err != nil {
			return err
		}
	}
	return nil
}
