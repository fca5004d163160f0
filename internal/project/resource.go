package project

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResourceTask is the project's resource pre-step: it embeds a project's
// resource files as byte arrays in a single generated C++ translation
// unit, implementing scheduler.Task so it can be run (synchronously, as a
// single task) the same way a compile task is.
type ResourceTask struct {
	resources []string
	outputDir string

	generatedPath string
	done          bool
	ok            bool
	out           string
}

// NewResourceTask builds a resource pre-step over resources (absolute
// paths), writing its generated translation unit under outputDir.
func NewResourceTask(resources []string, outputDir string) *ResourceTask {
	return &ResourceTask{resources: resources, outputDir: outputDir}
}

// Execute embeds every resource file as `extern const unsigned char name[]`
// plus a `name_len` size constant, concatenated into one generated
// resources.cpp.
func (t *ResourceTask) Execute(ctx context.Context) error {
	var buf bytes.Buffer
	buf.WriteString("// generated by forge from project resource files.\n")
	buf.WriteString("#include <cstddef>\n\n")

	for _, res := range t.resources {
		data, err := os.ReadFile(res)
		if err != nil {
			t.done, t.ok, t.out = true, false, err.Error()
			return fmt.Errorf("reading resource %s: %w", res, err)
		}

		ident := sanitizeIdentifier(filepath.Base(res))
		fmt.Fprintf(&buf, "extern const unsigned char %s[] = {", ident)
		for i, b := range data {
			if i%12 == 0 {
				buf.WriteString("\n    ")
			}
			fmt.Fprintf(&buf, "0x%02x,", b)
		}
		buf.WriteString("\n};\n")
		fmt.Fprintf(&buf, "extern const size_t %s_len = %d;\n\n", ident, len(data))
	}

	if err := os.MkdirAll(t.outputDir, 0755); err != nil {
		t.done, t.ok, t.out = true, false, err.Error()
		return fmt.Errorf("creating resource output directory: %w", err)
	}

	genPath := filepath.Join(t.outputDir, "resources.cpp")
	if err := os.WriteFile(genPath, buf.Bytes(), 0644); err != nil {
		t.done, t.ok, t.out = true, false, err.Error()
		return fmt.Errorf("writing generated resource file: %w", err)
	}

	t.generatedPath = genPath
	t.done = true
	t.ok = true
	t.out = fmt.Sprintf("embedded %d resource file(s) into %s", len(t.resources), genPath)
	return nil
}

func (t *ResourceTask) Done() bool      { return t.done }
func (t *ResourceTask) OK() bool        { return t.ok }
func (t *ResourceTask) Output() string  { return t.out }
func (t *ResourceTask) Label() string   { return "embed-resources" }

// GeneratedSources returns the generated source path(s) produced by a
// successful Execute, suitable to merge into a configuration's
// generated-resources source category.
func (t *ResourceTask) GeneratedSources() []string {
	if t.generatedPath == "" {
		return nil
	}
	return []string{t.generatedPath}
}

// sanitizeIdentifier turns an arbitrary filename into a valid C identifier:
// any run of non [A-Za-z0-9] characters (underscores included) becomes a
// single underscore, and a
// leading digit is prefixed with an underscore.
func sanitizeIdentifier(name string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range name {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	ident := b.String()
	if ident == "" {
		return "_resource"
	}
	if ident[0] >= '0' && ident[0] <= '9' {
		ident = "_" + ident
	}
	return ident
}
