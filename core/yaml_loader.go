package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFileLoader reads a raw config map from a YAML file for
// CfgxConfigProvider. A missing optional file loads as empty.
type YAMLFileLoader struct {
	Path     string
	Optional bool
}

func NewYAMLFileLoader(path string) *YAMLFileLoader {
	return &YAMLFileLoader{Path: path}
}

func (l *YAMLFileLoader) LoadRaw(_ context.Context) (map[string]any, error) {
	if l == nil {
		return map[string]any{}, nil
	}
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return nil, fmt.Errorf("core: yaml config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && l.Optional {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config %s: %w", path, err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config %s: %w", path, err)
	}
	return raw, nil
}

var _ RawConfigLoader = (*YAMLFileLoader)(nil)
