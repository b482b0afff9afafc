// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: anthropic-api-key, openai-api-key, cohere-api-key, gemini-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Key file names understood by the assistant.
const (
	AnthropicKey = "anthropic-api-key"
	OpenAIKey    = "openai-api-key"
	CohereKey    = "cohere-api-key"
	GeminiKey    = "gemini-api-key"
)

// Set maps key file names to their values.
type Set map[string]string

// Get returns explicit when it is non-empty, otherwise the stored value for key.
// Explicit configuration always wins over files on disk.
func (s Set) Get(key, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s[key]
}

// Names returns the loaded key names in sorted order, never the values.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Load reads all files in dir and returns a Set of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty Set.
// Unreadable files are logged and skipped. A nil log discards warnings.
func Load(dir string, log *zap.Logger) (Set, error) {
	if log == nil {
		log = zap.NewNop()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Set{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(Set)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}
