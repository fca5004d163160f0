package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/internal/scaffold"
)

var newTemplateRepoFlag string

var newCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Scaffold a new project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScaffoldWithRepo(globalCtx, args[0], newTemplateRepoFlag)
	},
}

func init() {
	newCmd.Flags().StringVar(&newTemplateRepoFlag, "template-repo", "", `Fetch a starter layout from "owner/repo" (optionally "owner/repo@subpath") instead of the embedded minimal template`)
}

// runScaffold backs "-P NAME": scaffold using whatever template repo is
// configured in the environment, if any.
func runScaffold(ctx context.Context, name string) error {
	return runScaffoldWithRepo(ctx, name, "")
}

func runScaffoldWithRepo(ctx context.Context, name, templateRepo string) error {
	dir, usedTemplate, err := scaffold.New(ctx, scaffold.Options{Name: name, TemplateRepo: templateRepo})
	if err != nil {
		return err
	}
	if usedTemplate {
		fmt.Printf("scaffolded %q from %s into %s\n", name, templateRepo, dir)
	} else {
		fmt.Printf("scaffolded %q into %s\n", name, dir)
	}
	return nil
}
