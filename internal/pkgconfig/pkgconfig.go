// Package pkgconfig wraps the external pkg-config binary, translating its
// --cflags and --libs output into the include-path and library-name lists
// buildconfig folds into a Configuration.
package pkgconfig

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgebuild/forge/internal/shellrun"
)

// Result holds the two flag categories pkg-config reports for a package.
type Result struct {
	IncludePaths []string
	Libs         []string
}

// Query runs `pkg-config --cflags <pkg>` and `pkg-config --libs <pkg>` as two
// separate invocations (matching the two-pass contract: cflags resolved
// independently of libs, since either call can fail on its own) and parses
// their output into a Result.
func Query(ctx context.Context, pkg string) (*Result, error) {
	cflags := shellrun.Run(ctx, "pkg-config", []string{"--cflags", pkg}, nil)
	if !cflags.OK {
		return nil, fmt.Errorf("pkg-config --cflags %s: %s", pkg, strings.TrimSpace(cflags.Output))
	}

	libs := shellrun.Run(ctx, "pkg-config", []string{"--libs", pkg}, nil)
	if !libs.OK {
		return nil, fmt.Errorf("pkg-config --libs %s: %s", pkg, strings.TrimSpace(libs.Output))
	}

	return &Result{
		IncludePaths: parseFlags(cflags.Output, "-I"),
		Libs:         parseLibs(libs.Output),
	}, nil
}

// parseFlags extracts the value following every token that starts with
// prefix (e.g. "-I/usr/include/gtk-3.0" -> "/usr/include/gtk-3.0"). Other
// tokens (such as -D defines pkg-config sometimes emits in --cflags) are
// ignored: buildconfig only wants search paths here.
func parseFlags(output, prefix string) []string {
	var out []string
	for _, tok := range strings.Fields(output) {
		if strings.HasPrefix(tok, prefix) {
			out = append(out, strings.TrimPrefix(tok, prefix))
		}
	}
	return out
}

// parseLibs extracts library names from `--libs` output, stripping the -l
// prefix and skipping -L search-path tokens (those belong in LibPaths, not
// library names).
func parseLibs(output string) []string {
	var out []string
	for _, tok := range strings.Fields(output) {
		if strings.HasPrefix(tok, "-l") {
			out = append(out, strings.TrimPrefix(tok, "-l"))
		}
	}
	return out
}
