package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const defaultManifest = "requirements.txt"

var projectSkeletonDirs = []string{"src", "tests", "docs", "config", "static", "templates"}

// Materializer writes a GeneratedProject to <baseDir>/<name>.
type Materializer struct {
	baseDir string
	out     io.Writer
	log     *logrus.Logger
}

func NewMaterializer(baseDir string, out io.Writer, log *logrus.Logger) *Materializer {
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = discardLogger()
	}
	return &Materializer{baseDir: orDefault(strings.TrimSpace(baseDir), defaultProjectsDir), out: out, log: log}
}

func (m *Materializer) ProjectPath(name string) string {
	return filepath.Join(m.baseDir, name)
}

// Exists reports whether a project directory with that name is already on disk.
func (m *Materializer) Exists(name string) bool {
	info, err := os.Stat(m.ProjectPath(name))
	return err == nil && info.IsDir()
}

type MaterializeOptions struct {
	Secrets map[string]string
	Run     RunDescriptor
}

// Materialize validates every path before writing anything, so a rejected
// project leaves nothing behind. Files are overwritten in place.
func (m *Materializer) Materialize(project GeneratedProject, opts MaterializeOptions) (string, error) {
	if strings.TrimSpace(project.Name) == "" {
		return "", errors.New("project name required")
	}
	if err := validateProjectDirName(project.Name); err != nil {
		return "", err
	}
	cleaned := make([]ProjectFile, 0, len(project.Files))
	for _, f := range project.Files {
		rel, err := cleanProjectPath(f.Path)
		if err != nil {
			return "", err
		}
		cleaned = append(cleaned, ProjectFile{Path: rel, Content: f.Content})
	}

	root := m.ProjectPath(project.Name)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	for _, dir := range projectSkeletonDirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return "", err
		}
	}
	paths := make([]string, 0, len(cleaned))
	for _, f := range cleaned {
		target := filepath.Join(root, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		mode := os.FileMode(0o644)
		if f.Path == projectEnvFile {
			mode = 0o600
		}
		if err := os.WriteFile(target, []byte(f.Content), mode); err != nil {
			return "", err
		}
		paths = append(paths, f.Path)
		fmt.Fprintf(m.out, "  └─ Created file: %s\n", f.Path)
	}

	if err := writeProjectEnv(root, opts.Secrets); err != nil {
		return "", fmt.Errorf("write %s: %w", projectEnvFile, err)
	}
	run := opts.Run.withDefaults(RunDescriptor{Entrypoint: detectEntrypoint(paths), Manifest: defaultManifest})
	if err := writeRunDescriptor(root, run); err != nil {
		return "", fmt.Errorf("write %s: %w", runDescriptorFile, err)
	}
	m.log.WithFields(logrus.Fields{"project": project.Name, "files": len(paths)}).Debug("project materialized")
	return root, nil
}

// cleanProjectPath accepts only relative slash paths that stay inside the
// project root. Backslashes are treated as separators.
func cleanProjectPath(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", &PathError{Path: raw, Reason: "empty path"}
	}
	p = strings.ReplaceAll(p, `\`, "/")
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" || hasDriveLetter(p) {
		return "", &PathError{Path: raw, Reason: "absolute path"}
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", &PathError{Path: raw, Reason: "parent directory reference"}
		}
	}
	p = path.Clean(p)
	if p == "." {
		return "", &PathError{Path: raw, Reason: "path names the project root"}
	}
	return p, nil
}

func hasDriveLetter(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func validateProjectDirName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &PathError{Path: name, Reason: "project name must be a single directory name"}
	}
	return nil
}
