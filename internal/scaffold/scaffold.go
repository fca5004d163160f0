// Package scaffold backs "-P NAME" and "forge new NAME": it writes a new
// project directory containing a minimal valid descriptor, a stub source
// file, and a .gitignore. When a template repository is configured and
// reachable, it is preferred over the embedded minimal template; any
// failure to fetch it falls back silently, since scaffolding a new project
// must work fully offline.
package scaffold

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/forgebuild/forge/internal/httputil"
	"github.com/forgebuild/forge/internal/progress"
)

//go:embed templates/minimal/*
var embeddedTemplates embed.FS

// Options controls one scaffolding operation.
type Options struct {
	// Name is the new project's name, used for the default executable
	// output name and as the destination directory when Dir is empty.
	Name string
	// Dir is the destination directory. Defaults to Name.
	Dir string
	// TemplateRepo, if set, is an "owner/repo" GitHub repository whose
	// root tree is fetched as a starter layout in place of the embedded
	// minimal template. A path inside the repo can be appended with "@":
	// "owner/repo@templates/cpp17".
	TemplateRepo string
}

// New scaffolds a new project per opts, preferring a remote template when
// configured and reachable, otherwise writing the embedded minimal one.
func New(ctx context.Context, opts Options) (dir string, usedTemplate bool, err error) {
	if opts.Name == "" {
		return "", false, fmt.Errorf("scaffold: project name is required")
	}
	dir = opts.Dir
	if dir == "" {
		dir = opts.Name
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", false, fmt.Errorf("scaffold: creating project directory: %w", err)
	}

	if opts.TemplateRepo != "" {
		if err := fetchTemplate(ctx, opts.TemplateRepo, dir); err == nil {
			return dir, true, nil
		}
		// Any fetch failure (no network, bad repo, rate limit) falls back
		// to the embedded template rather than failing the command.
	}

	if err := writeEmbeddedTemplate(dir, opts.Name); err != nil {
		return "", false, err
	}
	return dir, false, nil
}

// embeddedFiles maps each embedded template source (dot-prefixed names
// can't live in an embed.FS glob) to its destination filename in the new
// project directory.
var embeddedFiles = map[string]string{
	"project.json.tmpl": "project.json",
	"main.cpp.tmpl":     "main.cpp",
	"gitignore.tmpl":    ".gitignore",
}

func writeEmbeddedTemplate(dir, name string) error {
	for src, destName := range embeddedFiles {
		data, err := embeddedTemplates.ReadFile(filepath.Join("templates/minimal", src))
		if err != nil {
			return fmt.Errorf("scaffold: reading embedded %s: %w", src, err)
		}
		content := strings.ReplaceAll(string(data), "{{PROJECT_NAME}}", name)
		if err := os.WriteFile(filepath.Join(dir, destName), []byte(content), 0644); err != nil {
			return fmt.Errorf("scaffold: writing %s: %w", destName, err)
		}
	}
	return nil
}

// splitTemplateRepo parses "owner/repo" or "owner/repo@sub/path".
func splitTemplateRepo(spec string) (owner, repo, subpath string, err error) {
	repoPart := spec
	if idx := strings.IndexByte(spec, '@'); idx >= 0 {
		repoPart = spec[:idx]
		subpath = spec[idx+1:]
	}
	parts := strings.SplitN(repoPart, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("scaffold: invalid template repo %q (want owner/repo)", spec)
	}
	return parts[0], parts[1], subpath, nil
}

// newGitHubClient builds a go-github client over forge's hardened HTTP
// client (SSRF-protected redirect validation, no response decompression
// bombs), token-authenticated when GITHUB_TOKEN is set. The explain
// providers do not use this client; they use their SDKs' own.
func newGitHubClient(ctx context.Context) *github.Client {
	opts := httputil.DefaultOptions()
	opts.Timeout = 15 * time.Second
	httpClient := httputil.NewSecureClient(opts)

	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		httpClient.Transport = &oauth2.Transport{
			Base:   httpClient.Transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}
	return github.NewClient(httpClient)
}

// fetchTemplate recursively downloads a template repository's tree into
// dir, preserving relative paths, with a terminal spinner standing in for
// progress feedback since the tree size isn't known up front.
func fetchTemplate(ctx context.Context, spec, dir string) error {
	owner, repo, subpath, err := splitTemplateRepo(spec)
	if err != nil {
		return err
	}
	client := newGitHubClient(ctx)

	spinner := progress.NewSpinner(nil)
	spinner.Start(fmt.Sprintf("fetching template %s", spec))
	err = fetchTree(ctx, client, owner, repo, subpath, dir)
	if err != nil {
		spinner.Stop()
		return err
	}
	spinner.StopWithMessage(fmt.Sprintf("fetched template %s", spec))
	return nil
}

func fetchTree(ctx context.Context, client *github.Client, owner, repo, path, destDir string) error {
	fileContent, dirContent, _, err := client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return fmt.Errorf("scaffold: fetching %s/%s:%s: %w", owner, repo, path, err)
	}

	if fileContent != nil {
		return writeRemoteFile(destDir, path, fileContent)
	}

	for _, entry := range dirContent {
		entryPath := entry.GetPath()
		rel := strings.TrimPrefix(strings.TrimPrefix(entryPath, path), "/")
		target := filepath.Join(destDir, filepath.FromSlash(rel))

		switch entry.GetType() {
		case "dir":
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("scaffold: creating %s: %w", target, err)
			}
			if err := fetchTree(ctx, client, owner, repo, entryPath, target); err != nil {
				return err
			}
		case "file":
			content, _, _, err := client.Repositories.GetContents(ctx, owner, repo, entryPath, nil)
			if err != nil {
				return fmt.Errorf("scaffold: fetching %s: %w", entryPath, err)
			}
			if err := writeRemoteFile(destDir, path, content); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeRemoteFile(destDir, basePath string, file *github.RepositoryContent) error {
	decoded, err := file.GetContent()
	if err != nil {
		return fmt.Errorf("scaffold: decoding %s: %w", file.GetPath(), err)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(file.GetPath(), basePath), "/")
	target := filepath.Join(destDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("scaffold: creating parent directory for %s: %w", target, err)
	}
	return os.WriteFile(target, []byte(decoded), 0644)
}
