package functional

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cucumber/godog"
)

type stateKeyType struct{}

var stateKey = stateKeyType{}

// testState carries one scenario's working directory, the path to the
// forge binary under test, and the outcome of the last command run.
type testState struct {
	workDir  string
	binPath  string
	stdout   string
	stderr   string
	exitCode int
}

func getState(ctx context.Context) *testState {
	if s, ok := ctx.Value(stateKey).(*testState); ok {
		return s
	}
	return nil
}

func setState(ctx context.Context, s *testState) context.Context {
	return context.WithValue(ctx, stateKey, s)
}

func TestFeatures(t *testing.T) {
	binPath := os.Getenv("FORGE_TEST_BINARY")
	if binPath == "" {
		t.Skip("FORGE_TEST_BINARY not set; set it to the path of a built forge binary")
	}

	absBin, err := filepath.Abs(binPath)
	if err != nil {
		t.Fatalf("resolving binary path: %v", err)
	}
	binPath = absBin

	opts := &godog.Options{
		Format:   "pretty",
		Paths:    []string{"features"},
		TestingT: t,
	}
	if tags := os.Getenv("FORGE_TEST_TAGS"); tags != "" {
		opts.Tags = tags
	}

	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			initializeScenario(ctx, binPath)
		},
		Options: opts,
	}
	if suite.Run() != 0 {
		t.Fatal("functional tests failed")
	}
}

func initializeScenario(ctx *godog.ScenarioContext, binPath string) {
	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		workDir, err := os.MkdirTemp("", "forge-functional-")
		if err != nil {
			return ctx, err
		}
		state := &testState{workDir: workDir, binPath: binPath}
		return setState(ctx, state), nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if state := getState(ctx); state != nil {
			os.RemoveAll(state.workDir)
		}
		return ctx, nil
	})

	// Project fixtures
	ctx.Step(`^a project descriptor declaring source "([^"]*)" in configuration "([^"]*)"$`, aProjectDescriptorDeclaringSource)
	ctx.Step(`^a project descriptor with configuration "([^"]*)" targeting "([^"]*)" named "([^"]*)"$`, aProjectDescriptorWithTargetNamed)
	ctx.Step(`^a project "([^"]*)" depending on library project "([^"]*)"$`, aProjectDependingOnLibraryProject)
	ctx.Step(`^a project descriptor declaring sources "([^"]*)" and "([^"]*)" with the same basename$`, aProjectDescriptorWithBasenameCollision)
	ctx.Step(`^a script-mode source file "([^"]*)"$`, aScriptModeSourceFile)
	ctx.Step(`^project "([^"]*)" declares a dependency on project "([^"]*)"$`, projectDeclaresDependencyOn)
	ctx.Step(`^I touch the file "([^"]*)"$`, iTouchTheFile)

	// Command steps
	ctx.Step(`^I run "([^"]*)"$`, iRun)
	ctx.Step(`^I run "([^"]*)" again$`, iRun)

	// Assertion steps
	ctx.Step(`^the exit code is (\d+)$`, theExitCodeIs)
	ctx.Step(`^the exit code is not (\d+)$`, theExitCodeIsNot)
	ctx.Step(`^the output contains "([^"]*)"$`, theOutputContains)
	ctx.Step(`^the error output contains "([^"]*)"$`, theErrorOutputContains)
	ctx.Step(`^the file "([^"]*)" exists$`, theFileExists)
	ctx.Step(`^the file "([^"]*)" does not exist$`, theFileDoesNotExist)
	ctx.Step(`^zero compile tasks ran$`, zeroCompileTasksRan)
	ctx.Step(`^compiling "([^"]*)" ran exactly once$`, compilingRanExactlyOnce)
}
