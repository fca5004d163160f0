package project

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/forgebuild/forge/internal/buildconfig"
)

// Run replaces the current process with the executable produced by the
// named configuration, forwarding extraArgs. Only executable targets can
// be run. The environment carries a library-search-path variable derived
// from the most recent Build's dependency shared/static libraries, so a
// dependency's shared object resolves at dynamic-link time.
func (p *Project) Run(configName string, extraArgs []string) error {
	activeName, err := p.resolveActiveConfig(configName)
	if err != nil {
		return err
	}
	cfg := p.Configs[activeName]

	if cfg.Target != buildconfig.TargetExecutable {
		return &ConfigError{Project: p.Name, Key: "configurations." + activeName + ".target", Reason: "run requires an executable target"}
	}

	targetPath := cfg.TargetPath(p.RootDir)
	if info, err := os.Stat(targetPath); err != nil || info.IsDir() {
		return &MissingArtifactError{Project: p.Name, Path: targetPath}
	}

	argv := append([]string{targetPath}, extraArgs...)
	env := os.Environ()
	if len(p.runtimeLibPaths) > 0 {
		env = append(env, fmt.Sprintf("LD_LIBRARY_PATH=%s", strings.Join(p.runtimeLibPaths, string(os.PathListSeparator))))
	}

	return syscall.Exec(targetPath, argv, env)
}
