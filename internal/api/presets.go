package api

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/security"
)

var presetNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// PresetStore keeps named tuning configurations as JSON files in a single
// directory, one file per preset.
type PresetStore struct {
	Dir string
}

func (ps *PresetStore) path(name string) (string, error) {
	if !presetNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid preset name %q", name)
	}
	path := filepath.Join(ps.Dir, name+".json")
	if err := security.ValidatePathWithinDirectory(path, ps.Dir); err != nil {
		return "", err
	}
	return path, nil
}

// Save writes the preset, creating the store directory on first use.
func (ps *PresetStore) Save(name string, cfg *chamber.TuningConfig) error {
	path, err := ps.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(ps.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write preset: %w", err)
	}
	return nil
}

// Load reads a named preset.
func (ps *PresetStore) Load(name string) (*chamber.TuningConfig, error) {
	path, err := ps.path(name)
	if err != nil {
		return nil, err
	}
	return chamber.LoadTuningConfig(path)
}

// Delete removes a preset. Deleting a missing preset is an error so the API
// can report 404.
func (ps *PresetStore) Delete(name string) error {
	path, err := ps.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete preset %s: %w", name, err)
	}
	return nil
}

// List returns the preset names in sorted order. A missing directory is an
// empty store, not an error.
func (ps *PresetStore) List() ([]string, error) {
	entries, err := os.ReadDir(ps.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preset directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}
