package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errNoTickets          = errors.New("no active tickets assigned")
	errInvalidSelection   = errors.New("invalid selection")
	errCancelled          = errors.New("cancelled")
	errPythonNotInstalled = errors.New("python not installed")
	errGHNotInstalled     = errors.New("gh not installed")
	errNoProjects         = errors.New("no generated projects found")
)

// ConfigError reports missing or unreadable credentials and settings.
type ConfigError struct {
	Missing []string
	Err     error
}

func (e *ConfigError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("missing required credentials: %s (check your .env file)", strings.Join(e.Missing, ", "))
	}
	if e.Err == nil {
		return "invalid configuration"
	}
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError is returned when a remote service rejects our credentials.
type AuthError struct {
	Service string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %v", e.Service, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

type GenerationErrorKind int

const (
	GenerationRequestFailed GenerationErrorKind = iota
	GenerationInvalidJSON
	GenerationInvalidShape
)

func (k GenerationErrorKind) String() string {
	switch k {
	case GenerationInvalidJSON:
		return "malformed JSON"
	case GenerationInvalidShape:
		return "unexpected response shape"
	default:
		return "request failed"
	}
}

// GenerationError describes a failed or unusable model response. DebugPath
// points at the saved raw response when one was written.
type GenerationError struct {
	Kind      GenerationErrorKind
	DebugPath string
	Err       error
}

func (e *GenerationError) Error() string {
	msg := fmt.Sprintf("code generation failed (%s): %v", e.Kind, e.Err)
	if e.DebugPath != "" {
		msg += "; raw response saved to " + e.DebugPath
	}
	return msg
}

func (e *GenerationError) Unwrap() error { return e.Err }

type ProvisionErrorKind int

const (
	ProvisionToolMissing ProvisionErrorKind = iota
	ProvisionEnvCreateFailed
	ProvisionInstallFailed
)

func (k ProvisionErrorKind) String() string {
	switch k {
	case ProvisionToolMissing:
		return "tool missing"
	case ProvisionEnvCreateFailed:
		return "environment creation failed"
	default:
		return "dependency install failed"
	}
}

// ProvisionError separates "install the prerequisites" from "fix the manifest".
type ProvisionError struct {
	Kind   ProvisionErrorKind
	Output string
	Err    error
}

func (e *ProvisionError) Error() string {
	msg := fmt.Sprintf("environment setup failed (%s): %v", e.Kind, e.Err)
	if out := trimmedCommandOutput(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// PathError rejects a generated file path that is not a plain relative path
// inside the project root.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid project file path %q: %s", e.Path, e.Reason)
}

// PublishError names the project and publish step that failed.
type PublishError struct {
	Project string
	Step    string
	Err     error
}

func (e *PublishError) Error() string {
	if e.Project == "" {
		return fmt.Sprintf("publish %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("publish %s (%s): %v", e.Project, e.Step, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func trimmedCommandOutput(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	const maxLen = 1600
	if len(output) <= maxLen {
		return output
	}
	return "...\n" + output[len(output)-maxLen:]
}
