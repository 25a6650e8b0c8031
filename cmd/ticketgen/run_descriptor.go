package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const runDescriptorFile = ".ticketgen.yaml"

// RunDescriptor records how a generated project is started and where it
// listens, so the runner never has to guess the port.
type RunDescriptor struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Entrypoint string `yaml:"entrypoint"`
	Manifest   string `yaml:"manifest"`
}

var entrypointCandidates = []string{
	"src/main.py",
	"app.py",
	"main.py",
	"src/app.py",
	"run.py",
}

func (d RunDescriptor) withDefaults(fallback RunDescriptor) RunDescriptor {
	d.Host = orDefault(strings.TrimSpace(d.Host), orDefault(fallback.Host, defaultAppHost))
	if d.Port <= 0 {
		d.Port = fallback.Port
	}
	if d.Port <= 0 {
		d.Port = defaultAppPort
	}
	d.Entrypoint = orDefault(strings.TrimSpace(d.Entrypoint), fallback.Entrypoint)
	d.Manifest = orDefault(strings.TrimSpace(d.Manifest), orDefault(fallback.Manifest, defaultManifest))
	return d
}

func (d RunDescriptor) URL() string {
	return "http://" + net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// detectEntrypoint picks the first known entry point among the given
// slash-separated relative paths.
func detectEntrypoint(paths []string) string {
	present := make(map[string]bool, len(paths))
	for _, p := range paths {
		present[p] = true
	}
	for _, candidate := range entrypointCandidates {
		if present[candidate] {
			return candidate
		}
	}
	return entrypointCandidates[0]
}

func detectEntrypointOnDisk(root string) string {
	for _, candidate := range entrypointCandidates {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(candidate)))
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	return entrypointCandidates[0]
}

func writeRunDescriptor(root string, d RunDescriptor) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, runDescriptorFile), data, 0o644)
}

// readRunDescriptor loads root/.ticketgen.yaml. Projects generated before the
// descriptor existed fall back to the given defaults and on-disk detection.
func readRunDescriptor(root string, fallback RunDescriptor) (RunDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(root, runDescriptorFile))
	if errors.Is(err, os.ErrNotExist) {
		fallback.Entrypoint = orDefault(fallback.Entrypoint, detectEntrypointOnDisk(root))
		return RunDescriptor{}.withDefaults(fallback), nil
	}
	if err != nil {
		return RunDescriptor{}, err
	}
	var d RunDescriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return RunDescriptor{}, fmt.Errorf("parse %s: %w", runDescriptorFile, err)
	}
	if strings.TrimSpace(d.Entrypoint) == "" {
		d.Entrypoint = detectEntrypointOnDisk(root)
	}
	return d.withDefaults(fallback), nil
}
