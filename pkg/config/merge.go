package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// mergeConfigFiles loads basePath and overlays localPath on top of it.
// Missing files are skipped. Returns nil when neither file exists.
func mergeConfigFiles(basePath, localPath string) (map[string]any, error) {
	base, err := readYAMLMap(basePath)
	if err != nil {
		return nil, err
	}

	local, err := readYAMLMap(localPath)
	if err != nil {
		return nil, err
	}

	if base == nil {
		return local, nil
	}
	if local == nil {
		return base, nil
	}

	return deepMerge(base, local), nil
}

func readYAMLMap(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return m, nil
}

// deepMerge overlays local onto base. Nested maps merge recursively,
// lists and scalars replace wholesale, and explicit nulls in the overlay
// leave the base value in place (null never deletes).
func deepMerge(base, local map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(local))
	for k, v := range base {
		out[k] = v
	}

	for k, v := range local {
		if v == nil {
			continue
		}
		localMap, localOK := v.(map[string]any)
		baseMap, baseOK := out[k].(map[string]any)
		if localOK && baseOK {
			out[k] = deepMerge(baseMap, localMap)
			continue
		}
		out[k] = v
	}

	return out
}

// unmarshalMerged round-trips the merged map through YAML so the struct
// tags on Config apply.
func unmarshalMerged(merged map[string]any, cfg *Config) error {
	data, err := yaml.Marshal(merged)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
