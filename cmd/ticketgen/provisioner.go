package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

const venvDir = "venv"

var pythonCandidates = []string{"python3", "python"}

// Environment is a provisioned per-project virtual environment.
type Environment struct {
	Root        string
	Interpreter string
}

type Provisioner struct {
	log *logrus.Logger
}

func NewProvisioner(log *logrus.Logger) *Provisioner {
	if log == nil {
		log = discardLogger()
	}
	return &Provisioner{log: log}
}

func venvInterpreter(root string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(root, venvDir, "Scripts", "python.exe")
	}
	return filepath.Join(root, venvDir, "bin", "python")
}

func findPython() (string, error) {
	for _, name := range pythonCandidates {
		if p, err := lookPath(name); err == nil {
			return p, nil
		}
	}
	return "", errPythonNotInstalled
}

// Provision creates root/venv and installs the manifest into it when the
// manifest exists. An existing venv is reused.
func (p *Provisioner) Provision(ctx context.Context, root string, manifest string) (Environment, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Environment{}, err
	}
	env := Environment{Root: abs, Interpreter: venvInterpreter(abs)}

	if _, err := os.Stat(env.Interpreter); err != nil {
		python, err := findPython()
		if err != nil {
			return Environment{}, &ProvisionError{Kind: ProvisionToolMissing, Err: err}
		}
		p.log.WithFields(logrus.Fields{"python": python, "root": abs}).Debug("creating virtual environment")
		out, err := runCommand(ctx, abs, python, []string{"-m", "venv", filepath.Join(abs, venvDir)}, nil)
		if err != nil {
			return Environment{}, &ProvisionError{Kind: ProvisionEnvCreateFailed, Output: out, Err: err}
		}
	}

	manifestPath := filepath.Join(abs, filepath.FromSlash(orDefault(manifest, defaultManifest)))
	if _, err := os.Stat(manifestPath); errors.Is(err, os.ErrNotExist) {
		p.log.WithField("manifest", manifestPath).Debug("no dependency manifest, skipping install")
		return env, nil
	}
	out, err := runCommand(ctx, abs, env.Interpreter, []string{"-m", "pip", "install", "-r", manifestPath}, nil)
	if err != nil {
		return Environment{}, &ProvisionError{Kind: ProvisionInstallFailed, Output: out, Err: err}
	}
	return env, nil
}

// Existing returns the environment of a previously provisioned project.
func (p *Provisioner) Existing(root string) (Environment, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Environment{}, err
	}
	env := Environment{Root: abs, Interpreter: venvInterpreter(abs)}
	if _, err := os.Stat(env.Interpreter); err != nil {
		return Environment{}, fmt.Errorf("no virtual environment in %s", abs)
	}
	return env, nil
}
