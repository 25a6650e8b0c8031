package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// HostingClient is the part of the git host the publisher needs.
type HostingClient interface {
	CurrentLogin(ctx context.Context) (string, error)
	EnsureRepository(ctx context.Context, name string) (string, error)
}

type ghRunner func(ctx context.Context, args []string, env []string) (string, error)

// GHManager talks to GitHub through the gh CLI, authenticated with the
// token from the credential file rather than gh's own login.
type GHManager struct {
	token string
	run   ghRunner
	log   *logrus.Logger
	login string
}

type ghUser struct {
	Login string `json:"login"`
}

type ghRepo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	CloneURL string `json:"clone_url"`
	SSHURL   string `json:"ssh_url"`
	Private  bool   `json:"private"`
}

func NewGHManager(token string, log *logrus.Logger) *GHManager {
	if log == nil {
		log = discardLogger()
	}
	return &GHManager{token: token, run: runGH, log: log}
}

func runGH(ctx context.Context, args []string, env []string) (string, error) {
	ghPath, err := lookPath("gh")
	if err != nil {
		return "", errGHNotInstalled
	}
	return runCommand(ctx, "", ghPath, args, env)
}

func (m *GHManager) api(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"api"}, args...)
	out, err := m.run(ctx, full, []string{"GH_TOKEN=" + m.token, "GH_PROMPT_DISABLED=1"})
	if err != nil {
		if errors.Is(err, errGHNotInstalled) {
			return "", err
		}
		msg := strings.TrimSpace(out)
		if isGHAuthFailure(msg) {
			return "", &AuthError{Service: "github", Err: errors.New(msg)}
		}
		if msg == "" {
			return "", err
		}
		return out, fmt.Errorf("%w: %s", err, trimmedCommandOutput(msg))
	}
	return out, nil
}

func (m *GHManager) CurrentLogin(ctx context.Context) (string, error) {
	if m.login != "" {
		return m.login, nil
	}
	out, err := m.api(ctx, "user")
	if err != nil {
		return "", err
	}
	var u ghUser
	if err := json.Unmarshal([]byte(out), &u); err != nil {
		return "", fmt.Errorf("decode gh user: %w", err)
	}
	if strings.TrimSpace(u.Login) == "" {
		return "", errors.New("gh user has no login")
	}
	m.login = u.Login
	return m.login, nil
}

// EnsureRepository creates a private repository under the authenticated
// account, or returns the existing one of that name. It returns the HTTPS
// clone URL.
func (m *GHManager) EnsureRepository(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("repository name required")
	}
	login, err := m.CurrentLogin(ctx)
	if err != nil {
		return "", err
	}
	out, err := m.api(ctx, "--method", "POST", "user/repos",
		"-f", "name="+name,
		"-F", "private=true",
		"-F", "auto_init=false",
	)
	if err != nil {
		if !isGHAlreadyExists(out, err) {
			return "", err
		}
		m.log.WithField("repo", login+"/"+name).Debug("repository already exists")
		out, err = m.api(ctx, "repos/"+login+"/"+name)
		if err != nil {
			return "", err
		}
	}
	var repo ghRepo
	if err := json.Unmarshal([]byte(out), &repo); err != nil {
		return "", fmt.Errorf("decode gh repo: %w", err)
	}
	if strings.TrimSpace(repo.CloneURL) == "" {
		return fmt.Sprintf("https://github.com/%s/%s.git", login, name), nil
	}
	return repo.CloneURL, nil
}

func isGHAuthFailure(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "http 401") || strings.Contains(lower, "bad credentials")
}

func isGHAlreadyExists(out string, err error) bool {
	lower := strings.ToLower(out + " " + err.Error())
	return strings.Contains(lower, "http 422") || strings.Contains(lower, "already exists")
}
