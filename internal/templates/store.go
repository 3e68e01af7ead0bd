// Copyright (c) 2026 John Earle
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

// Package templates resolves canned response templates by category.
// Templates are plain text files named <name>.txt in a single directory;
// a missing file is a skipped response, not a failure.
package templates

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mailclerk/automation/internal/models"
)

// byCategory maps the categories that warrant an auto-response to their
// template names. Categories absent here get no response.
var byCategory = map[models.Category]string{
	models.CategoryLegal:     "FCRA-Initial-Guidance",
	models.CategoryMedia:     "Media-Inquiry-Response",
	models.CategorySupporter: "Thank-You-Patron",
}

// Store loads response templates from a directory.
type Store struct {
	dir string
}

// NewStore creates a template store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// ForCategory returns the template name mapped to a category, and whether
// the category warrants a response at all.
func (s *Store) ForCategory(category models.Category) (string, bool) {
	name, ok := byCategory[category]
	return name, ok
}

// Load reads a template body by name.
func (s *Store) Load(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name+".txt"))
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", name, err)
	}
	return string(data), nil
}
