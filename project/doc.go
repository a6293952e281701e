// Copyright (c) ragflow Authors.
// Licensed under the MIT License.

// Package project keeps the registry of project namespaces in a JSON file.
// Project names are unique case-insensitively.
package project
