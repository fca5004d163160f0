package interactive

import (
	"bytes"
	"strings"
	"testing"
)

func withFakeTerminal(t *testing.T, isTerminal bool) {
	t.Helper()
	original := isTerminalFunc
	isTerminalFunc = func(fd int) bool { return isTerminal }
	t.Cleanup(func() { isTerminalFunc = original })
}

func TestChoose_SingleOptionSkipsPrompting(t *testing.T) {
	withFakeTerminal(t, true)
	got, err := Choose(strings.NewReader(""), &bytes.Buffer{}, 0, []string{"debug"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "debug" {
		t.Errorf("Choose() = %q, want %q", got, "debug")
	}
}

func TestChoose_NonTerminalUsesNumberedPrompt(t *testing.T) {
	withFakeTerminal(t, false)
	var out bytes.Buffer
	got, err := Choose(strings.NewReader("2\n"), &out, 0, []string{"debug", "release"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "release" {
		t.Errorf("Choose() = %q, want %q", got, "release")
	}
	if !strings.Contains(out.String(), "1) debug") || !strings.Contains(out.String(), "2) release") {
		t.Errorf("expected a numbered listing, got:\n%s", out.String())
	}
}

func TestChooseNumbered_EmptyInputDefaultsToFirst(t *testing.T) {
	var out bytes.Buffer
	got, err := chooseNumbered(strings.NewReader("\n"), &out, []string{"debug", "release"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "debug" {
		t.Errorf("chooseNumbered() = %q, want %q", got, "debug")
	}
}

func TestChooseNumbered_RejectsOutOfRangeSelection(t *testing.T) {
	var out bytes.Buffer
	_, err := chooseNumbered(strings.NewReader("9\n"), &out, []string{"debug", "release"})
	if err == nil {
		t.Fatal("expected an error for an out-of-range selection")
	}
}

func TestChooseNumbered_RejectsNonNumericSelection(t *testing.T) {
	var out bytes.Buffer
	_, err := chooseNumbered(strings.NewReader("nope\n"), &out, []string{"debug", "release"})
	if err == nil {
		t.Fatal("expected an error for a non-numeric selection")
	}
}

func TestChoose_NoOptionsIsAnError(t *testing.T) {
	_, err := Choose(strings.NewReader(""), &bytes.Buffer{}, 0, nil)
	if err == nil {
		t.Fatal("expected an error with zero options")
	}
}
