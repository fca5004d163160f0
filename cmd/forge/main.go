package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	"unsafe"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/internal/buildconfig"
	"github.com/forgebuild/forge/internal/buildinfo"
	"github.com/forgebuild/forge/internal/config"
	"github.com/forgebuild/forge/internal/errmsg"
	"github.com/forgebuild/forge/internal/interactive"
	"github.com/forgebuild/forge/internal/log"
	"github.com/forgebuild/forge/internal/objcache"
	"github.com/forgebuild/forge/internal/project"
	"github.com/forgebuild/forge/internal/scriptmode"
)

var (
	quietFlag   bool
	verboseFlag bool

	sizesFlag       bool
	rebuildAllFlag  bool
	runAfterFlag    bool
	workersFlag     int
	configNameFlag  string
	rewriteFlag     string
	truncateFlag    int
	timeFlag        bool
	scriptModeFlag  bool
	scaffoldFlag    string
	interactiveFlag bool
	schemaFlag      string
)

// globalCtx is canceled on SIGINT/SIGTERM; build and run both observe it.
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:     "forge [project.json ...]",
	Short:   "A native C/C++ build orchestrator",
	Version: buildinfo.Version(),
	Long: `forge incrementally compiles and links C/C++ projects described by a
small JSON descriptor: it tracks header dependencies itself, schedules
compile tasks across a worker pool, and resolves declared dependency
projects recursively.

With no positional arguments, forge looks for exactly one project
descriptor (*.json) in the current directory. Only the first positional
descriptor is loaded and built; any further ones are ignored.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "V", false, "Show verbose logging")
	rootCmd.PersistentPreRun = initLogger

	rootCmd.Flags().BoolVarP(&sizesFlag, "sizes", "s", false, "Print the byte size of forge's own build-plan structs and exit")
	rootCmd.Flags().BoolVarP(&rebuildAllFlag, "rebuild", "r", false, "Rebuild every source regardless of staleness")
	rootCmd.Flags().BoolVarP(&runAfterFlag, "run", "x", false, "Run the built executable after a successful build")
	rootCmd.Flags().IntVarP(&workersFlag, "workers", "n", 0, "Worker count for parallel compilation (0: one worker)")
	rootCmd.Flags().StringVarP(&configNameFlag, "config", "c", "", "Select a configuration by name")
	rootCmd.Flags().StringVarP(&rewriteFlag, "rewrite", "u", "", "Rewrite the descriptor with defaults filled in to FILE, without building")
	rootCmd.Flags().IntVarP(&truncateFlag, "truncate", "t", 0, "Truncate each task's captured output to N lines (0: unlimited)")
	rootCmd.Flags().BoolVarP(&timeFlag, "time", "T", false, "Print elapsed build time")
	rootCmd.Flags().BoolVarP(&scriptModeFlag, "script", "#", false, "Script mode: build and run a single source file as a cached program (must be the sole flag)")
	rootCmd.Flags().StringVarP(&scaffoldFlag, "new", "P", "", "Scaffold a new project named NAME and exit")
	rootCmd.Flags().BoolVarP(&interactiveFlag, "interactive", "i", false, "Choose a configuration interactively instead of passing -c")
	rootCmd.Flags().StringVarP(&schemaFlag, "schema", "S", "", "Print the project descriptor schema, or save it to FILE")
	rootCmd.Flags().Lookup("schema").NoOptDefVal = "-"

	rootCmd.AddCommand(newCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(explainCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %s, cancelling build...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		exitWithCode(ExitCancelled)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(exitCodeFor(err))
	}
}

// initLogger configures the default logger from verbosity flags, exactly
// as the root command's PersistentPreRun does for every subcommand.
func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := log.NewCLIHandler(os.Stderr, level)
	log.SetDefault(log.New(handler))
}

func determineLogLevel() slog.Level {
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}
	if isTruthy(os.Getenv("FORGE_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("FORGE_QUIET")) {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// exitCodeFor maps a returned error to the most specific exit code it
// carries, falling back to ExitGeneral.
func exitCodeFor(err error) int {
	switch {
	case isUsageErr(err):
		return ExitUsage
	case isConfigErr(err):
		return ExitConfig
	case isCycleErr(err):
		return ExitCycle
	case isBuildFailedErr(err):
		return ExitBuildFailed
	case isMissingArtifactErr(err):
		return ExitRunFailed
	default:
		return ExitGeneral
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	if sizesFlag {
		printSizes()
		return nil
	}

	if scaffoldFlag != "" {
		return runScaffold(globalCtx, scaffoldFlag)
	}

	if scriptModeFlag {
		if cmd.Flags().NFlag() > countPersistentSet(cmd)+1 {
			return usageError("-# must be the sole flag")
		}
		if len(args) == 0 {
			return usageError("usage: forge -# <script.cpp> [args...]")
		}
		cfg, err := config.DefaultConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		return scriptmode.Run(globalCtx, cfg, args[0], args[1:])
	}

	descriptorPath, err := resolveDescriptorPath(args)
	if err != nil {
		return err
	}

	if schemaFlag != "" {
		return writeSchema(schemaFlag)
	}

	p, err := project.Load(descriptorPath)
	if err != nil {
		return wrapFormatted(err, errmsg.Format(err, &errmsg.ErrorContext{ProjectName: descriptorPath}))
	}

	if rewriteFlag != "" {
		return project.Rewrite(p, rewriteFlag)
	}

	activeConfig := configNameFlag
	if interactiveFlag {
		choice, err := interactive.Choose(os.Stdin, os.Stdout, int(os.Stdin.Fd()), p.ConfigNames())
		if err != nil {
			return err
		}
		activeConfig = choice
	}

	cfg, err := config.DefaultConfig()
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	var cache *objcache.Cache
	if c, err := objcache.Open(cfg); err == nil {
		cache = c
		defer c.Close()
	} else {
		log.Default().Warn("object cache unavailable, compiling without it", "error", err)
	}

	start := time.Now()
	buildErr := p.Build(globalCtx, project.BuildOptions{
		ConfigName:    activeConfig,
		RebuildAll:    rebuildAllFlag,
		Workers:       workersFlag,
		TruncateLines: truncateFlag,
		Logger:        log.Default(),
		ObjectCache:   cache,
		Emit: func(label, output string) {
			fmt.Printf("== %s ==\n", label)
			if output != "" {
				fmt.Println(output)
			}
		},
	})
	if timeFlag {
		fmt.Fprintf(os.Stderr, "build took %s\n", humanize.RelTime(start, time.Now(), "", ""))
	}
	if buildErr != nil {
		return wrapFormatted(buildErr, errmsg.Format(buildErr, &errmsg.ErrorContext{ProjectName: p.Name}))
	}

	if runAfterFlag {
		if err := p.Run(activeConfig, nil); err != nil {
			return wrapFormatted(err, errmsg.Format(err, &errmsg.ErrorContext{ProjectName: p.Name}))
		}
	}
	return nil
}

// countPersistentSet reports how many persistent (quiet/verbose) flags
// were explicitly set, so "-#" can be recognized as the sole *local* flag
// even alongside global verbosity flags.
func countPersistentSet(cmd *cobra.Command) int {
	count := 0
	cmd.PersistentFlags().Visit(func(*cobra.Flag) { count++ })
	return count
}

// resolveDescriptorPath returns the single descriptor to load: the first
// positional argument, or the sole *.json file in the current directory.
func resolveDescriptorPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	entries, err := os.ReadDir(".")
	if err != nil {
		return "", fmt.Errorf("scanning current directory for a project descriptor: %w", err)
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			candidates = append(candidates, e.Name())
		}
	}
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("no project descriptor (*.json) found in the current directory")
	case 1:
		return candidates[0], nil
	default:
		return "", fmt.Errorf("multiple project descriptors found (%s); specify one explicitly", strings.Join(candidates, ", "))
	}
}

// printSizes backs "-s": a diagnostic relic of the original implementation
// (which printed sizeof() of its own data structures), reimplemented
// against this Go port's own build-plan structs.
func printSizes() {
	fmt.Printf("buildconfig.Configuration   %d bytes\n", unsafe.Sizeof(buildconfig.Configuration{}))
	fmt.Printf("buildconfig.CompileTask     %d bytes\n", unsafe.Sizeof(buildconfig.CompileTask{}))
	fmt.Printf("objcache.Key                %d bytes\n", unsafe.Sizeof(objcache.Key{}))
	fmt.Printf("project.Project             %d bytes\n", unsafe.Sizeof(project.Project{}))
	fmt.Printf("project.BuildOptions        %d bytes\n", unsafe.Sizeof(project.BuildOptions{}))
}
