package project

import (
	"encoding/json"
	"fmt"
)

// descriptor is the on-disk JSON shape of a project file.
type descriptor struct {
	Configurations map[string]configDescriptor `json:"configurations"`
	SourceFiles    []string                    `json:"source_files"`
	ResourceFiles  []string                    `json:"resource_files"`
	Version        string                      `json:"version"`
}

// configDescriptor is the on-disk JSON shape of one named configuration.
// Every field is optional except within the combinations the loader itself
// enforces (e.g. target must be a recognized value once resolved).
type configDescriptor struct {
	Default      bool            `json:"default"`
	Target       string          `json:"target"`
	Compiler     string          `json:"compiler"`
	Linker       string          `json:"linker"`
	Archiver     string          `json:"archiver"`
	OutputPath   string          `json:"output_path"`
	OutputName   string          `json:"output_name"`
	Standard     string          `json:"standard"`
	Optimisation flexString      `json:"optimisation"`
	Optimization flexString      `json:"optimization"`
	DebugLevel   flexString      `json:"debug_level"`
	GtkVersion   string          `json:"gtk_version"`
	PkgConfig    []string        `json:"pkg_config_packages"`
	Include      []string        `json:"include"`
	LibPaths     []string        `json:"libpaths"`
	Libs         []string        `json:"libs"`
	Define       []string        `json:"define"`
	Dependencies []json.RawMessage `json:"dependencies"`
	SourceFiles  []string        `json:"source_files"`
}

// flexString unmarshals a JSON string or number into a plain string,
// matching the original descriptor format's tolerance for either spelling
// of optimisation/debug levels (e.g. `"2"` or `2`).
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(n.String())
		return nil
	}

	return fmt.Errorf("value must be a string or number, got %s", string(data))
}

// dependencySpec is one parsed entry of a configuration's "dependencies"
// array: either a bare project path (config name defaults to "", meaning
// "same name as the current configuration"), or a single-key object
// mapping project path to an explicit configuration name.
type dependencySpec struct {
	ProjectPath string
	ConfigName  string
}

func parseDependencies(raw []json.RawMessage) ([]dependencySpec, error) {
	var out []dependencySpec
	for _, entry := range raw {
		var asString string
		if err := json.Unmarshal(entry, &asString); err == nil {
			out = append(out, dependencySpec{ProjectPath: asString})
			continue
		}

		var asObject map[string]string
		if err := json.Unmarshal(entry, &asObject); err == nil {
			if len(asObject) != 1 {
				return nil, fmt.Errorf("dependency object must have exactly one key, got %d", len(asObject))
			}
			for path, cfg := range asObject {
				out = append(out, dependencySpec{ProjectPath: path, ConfigName: cfg})
			}
			continue
		}

		return nil, fmt.Errorf("dependency entry %s is neither a string nor a single-key object", string(entry))
	}
	return out, nil
}

// resolveTargetKind maps the descriptor's target spelling onto buildconfig's
// TargetKind, defaulting to executable when unset.
func resolveTargetKind(raw string) (string, error) {
	switch raw {
	case "", "executable":
		return "executable", nil
	case "library":
		return "static-archive", nil
	case "sharedlibrary":
		return "shared-object", nil
	default:
		return "", fmt.Errorf("unknown target kind %q", raw)
	}
}
