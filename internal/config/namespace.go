// Copyright 2025 Nguyen Nhat Nguyen
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

package config

import (
	"errors"
	"fmt"
	"regexp"
)

const maxNamespaceLen = 63

// A DNS label: it prefixes stream names and subject tokens alike.
var namespacePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidateNamespace reports whether namespace can prefix the task streams.
func ValidateNamespace(namespace string) error {
	switch {
	case namespace == "":
		return errors.New("namespace cannot be empty")
	case len(namespace) > maxNamespaceLen:
		return fmt.Errorf("namespace %q is longer than %d characters", namespace, maxNamespaceLen)
	case !namespacePattern.MatchString(namespace):
		return fmt.Errorf("namespace %q must be DNS-safe (lowercase letters, digits and inner hyphens)", namespace)
	}
	return nil
}
