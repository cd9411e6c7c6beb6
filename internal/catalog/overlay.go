package catalog

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// overlayFile is the shape of `<target>/.usertest/catalog.yaml`.
type overlayFile struct {
	PersonaDirs        []string `yaml:"persona_dirs"`
	MissionDirs        []string `yaml:"mission_dirs"`
	DefaultsPersonaID  string   `yaml:"defaults_persona_id"`
	DefaultsMissionID  string   `yaml:"defaults_mission_id"`
}

// Overlay is the resolved result of reading a target's catalog overlay, if
// present.
type Overlay struct {
	PersonaDirs       []string
	MissionDirs       []string
	DefaultsPersonaID string
	DefaultsMissionID string
	Present           bool
}

// LoadTargetOverlay reads `<target>/.usertest/catalog.yaml` when present
// and returns its directories/defaults, resolved relative to the target
// root. A missing overlay file is not an error: Overlay.Present is false.
func LoadTargetOverlay(targetRoot string) (Overlay, error) {
	path := filepath.Join(targetRoot, ".usertest", "catalog.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Overlay{}, nil
		}
		return Overlay{}, err
	}

	var f overlayFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Overlay{}, newErr("invalid_overlay_yaml", "failed to parse %s: %v", path, err)
	}

	resolve := func(dirs []string) []string {
		out := make([]string, 0, len(dirs))
		for _, d := range dirs {
			if filepath.IsAbs(d) {
				out = append(out, d)
			} else {
				out = append(out, filepath.Join(targetRoot, d))
			}
		}
		return out
	}

	return Overlay{
		PersonaDirs:       resolve(f.PersonaDirs),
		MissionDirs:       resolve(f.MissionDirs),
		DefaultsPersonaID: f.DefaultsPersonaID,
		DefaultsMissionID: f.DefaultsMissionID,
		Present:           true,
	}, nil
}

// ApplyOverlay appends the overlay's directories to cfg and returns the
// merged config. Per §4.C, overlay dirs are appended (never replace) and
// its defaults override the base config's when both are present — the
// override itself is the caller's responsibility once it has both default
// ids in hand.
func ApplyOverlay(cfg Config, ov Overlay) Config {
	if !ov.Present {
		return cfg
	}
	return Config{
		PersonaDirs: append(append([]string{}, cfg.PersonaDirs...), ov.PersonaDirs...),
		MissionDirs: append(append([]string{}, cfg.MissionDirs...), ov.MissionDirs...),
	}
}
