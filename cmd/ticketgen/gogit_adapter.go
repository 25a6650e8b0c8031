package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	sshconfig "github.com/kevinburke/ssh_config"
)

const originRemote = "origin"

var sshConfigGet = func(alias, key string) string {
	return sshconfig.Get(alias, key)
}

var sshConfigGetAll = func(alias, key string) []string {
	return sshconfig.GetAll(alias, key)
}

type GitIdentity struct {
	Name  string
	Email string
}

func (i GitIdentity) complete() bool {
	return strings.TrimSpace(i.Name) != "" && strings.TrimSpace(i.Email) != ""
}

// openOrInitRepo opens dir as a repository, initialising it on defaultBranch
// when there is none yet. created reports whether it was initialised.
func openOrInitRepo(dir string, defaultBranch string) (repo *git.Repository, created bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, false, err
	}
	repo, err = git.PlainOpen(dir)
	if err == nil {
		return repo, false, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, false, err
	}
	repo, err = git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(defaultBranch)},
	})
	if err != nil {
		return nil, false, err
	}
	return repo, true, nil
}

func headIsUnborn(repo *git.Repository) bool {
	_, err := repo.Head()
	return errors.Is(err, plumbing.ErrReferenceNotFound)
}

func currentBranch(repo *git.Repository) (string, error) {
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

func branchHash(repo *git.Repository, branch string) (plumbing.Hash, bool, error) {
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, false, nil
	}
	if err != nil {
		return plumbing.ZeroHash, false, err
	}
	return ref.Hash(), true, nil
}

// repoIdentity reads user.name/user.email from the repository config, then
// from the global config.
func repoIdentity(repo *git.Repository) GitIdentity {
	var id GitIdentity
	if cfg, err := repo.Config(); err == nil {
		id = GitIdentity{Name: cfg.User.Name, Email: cfg.User.Email}
	}
	if id.complete() {
		return id
	}
	if cfg, err := repo.ConfigScoped(config.GlobalScope); err == nil {
		if strings.TrimSpace(id.Name) == "" {
			id.Name = cfg.User.Name
		}
		if strings.TrimSpace(id.Email) == "" {
			id.Email = cfg.User.Email
		}
	}
	return id
}

func saveRepoIdentity(repo *git.Repository, id GitIdentity) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	cfg.User.Name = strings.TrimSpace(id.Name)
	cfg.User.Email = strings.TrimSpace(id.Email)
	return repo.SetConfig(cfg)
}

// stageAll stages every change in the worktree, deletions included, and
// reports whether anything differs from HEAD.
func stageAll(wt *git.Worktree) (bool, error) {
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	if status.IsClean() {
		return false, nil
	}
	deleted := make([]string, 0, len(status))
	for path, fs := range status {
		if fs.Worktree == git.Deleted {
			deleted = append(deleted, path)
		}
	}
	sort.Strings(deleted)
	for _, path := range deleted {
		if _, err := wt.Remove(path); err != nil {
			return false, fmt.Errorf("stage deletion of %s: %w", path, err)
		}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, err
	}
	status, err = wt.Status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

func commitStaged(wt *git.Worktree, message string, id GitIdentity) (plumbing.Hash, error) {
	sig := &object.Signature{Name: id.Name, Email: id.Email, When: time.Now()}
	return wt.Commit(message, &git.CommitOptions{Author: sig, Committer: sig})
}

// clearWorktree removes everything at the worktree root except .git.
func clearWorktree(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func remoteURL(repo *git.Repository, name string) (string, bool, error) {
	remote, err := repo.Remote(name)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	cfg := remote.Config()
	if cfg == nil || len(cfg.URLs) == 0 {
		return "", false, fmt.Errorf("remote %q has no URL", name)
	}
	return strings.TrimSpace(cfg.URLs[0]), true, nil
}

func hasUpstream(repo *git.Repository, branch string) (bool, error) {
	cfg, err := repo.Config()
	if err != nil {
		return false, err
	}
	b, ok := cfg.Branches[branch]
	return ok && b != nil && strings.TrimSpace(b.Remote) != "", nil
}

func setUpstream(repo *git.Repository, branch string, remote string) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	cfg.Branches[branch] = &config.Branch{
		Name:   branch,
		Remote: remote,
		Merge:  plumbing.NewBranchReferenceName(branch),
	}
	return repo.SetConfig(cfg)
}

// pushBranch pushes refs/heads/<branch> to the same name on remoteName. An
// ssh agent that fails to authenticate falls back to key files.
func pushBranch(ctx context.Context, repo *git.Repository, remoteName string, branch string, token string) error {
	endpoint, url, err := remoteEndpoint(repo, remoteName)
	if err != nil {
		return err
	}
	ref := plumbing.NewBranchReferenceName(branch)
	opts := &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())},
	}
	auth, usedAgent, err := pushAuthMethod(endpoint, url, token)
	if err != nil {
		return err
	}
	opts.Auth = auth

	err = repo.PushContext(ctx, opts)
	if err != nil && usedAgent && isSSHAuthFailure(err) {
		fallbackAuth, fallbackErr := sshKeyFileAuthForEndpoint(endpoint, url)
		if fallbackErr == nil {
			opts.Auth = fallbackAuth
			err = repo.PushContext(ctx, opts)
		}
	}
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return err
	}
	return nil
}

func pushAuthMethod(endpoint *transport.Endpoint, url string, token string) (transport.AuthMethod, bool, error) {
	if endpoint == nil {
		return nil, false, nil
	}
	if isSSHEndpoint(endpoint) {
		return sshAuthMethodForEndpoint(endpoint, url)
	}
	switch strings.ToLower(endpoint.Protocol) {
	case "http", "https":
		if strings.TrimSpace(token) == "" {
			return nil, false, nil
		}
		return &githttp.BasicAuth{Username: "x-access-token", Password: token}, false, nil
	default:
		return nil, false, nil
	}
}

func remoteEndpoint(repo *git.Repository, remoteName string) (*transport.Endpoint, string, error) {
	url, ok, err := remoteURL(repo, remoteName)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", fmt.Errorf("remote %q not found", remoteName)
	}
	endpoint, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, url, err
	}
	return endpoint, url, nil
}

func isSSHEndpoint(endpoint *transport.Endpoint) bool {
	if endpoint == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(endpoint.Protocol)) {
	case "ssh", "git+ssh", "ssh+git":
		return true
	default:
		return false
	}
}

// sshPushTarget is an ssh remote resolved through ~/.ssh/config: the alias
// from the remote URL, the real HostName, the port and the login user.
type sshPushTarget struct {
	alias string
	host  string
	port  int
	user  string
	url   string
}

func newSSHPushTarget(endpoint *transport.Endpoint, url string) sshPushTarget {
	target := sshPushTarget{alias: endpoint.Host, host: endpoint.Host, port: endpoint.Port, url: url}
	if hostname := strings.TrimSpace(sshConfigGet(endpoint.Host, "HostName")); hostname != "" {
		target.host = hostname
	}
	if target.port == 0 {
		target.port = 22
	}
	target.user = strings.TrimSpace(endpoint.User)
	if target.user == "" {
		target.user = strings.TrimSpace(sshConfigGet(endpoint.Host, "User"))
	}
	if target.user == "" {
		target.user = "git"
	}
	return target
}

func sshAuthMethodForEndpoint(endpoint *transport.Endpoint, url string) (transport.AuthMethod, bool, error) {
	target := newSSHPushTarget(endpoint, url)
	if auth, err := gitssh.NewSSHAgentAuth(target.user); err == nil {
		return auth, true, nil
	}
	auth, err := target.keyFileAuth()
	return auth, false, err
}

func sshKeyFileAuthForEndpoint(endpoint *transport.Endpoint, url string) (transport.AuthMethod, error) {
	return newSSHPushTarget(endpoint, url).keyFileAuth()
}

// keyFileAuth uses the first identity file that parses as a private key.
func (t sshPushTarget) keyFileAuth() (transport.AuthMethod, error) {
	var errs []string
	for _, keyPath := range t.identityFiles() {
		auth, err := gitssh.NewPublicKeysFromFile(t.user, keyPath, "")
		if err == nil {
			return auth, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", keyPath, err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no usable ssh keys for %q", t.url)
	}
	return nil, fmt.Errorf("ssh auth for %q: %s", t.url, strings.Join(errs, "; "))
}

// identityFiles lists the configured IdentityFile entries that exist, then
// the default key names unless IdentitiesOnly is set.
func (t sshPushTarget) identityFiles() []string {
	candidates := sshConfigGetAll(t.alias, "IdentityFile")
	if !strings.EqualFold(strings.TrimSpace(sshConfigGet(t.alias, "IdentitiesOnly")), "yes") {
		candidates = append(candidates, "~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa")
	}
	var out []string
	seen := map[string]bool{}
	for _, candidate := range candidates {
		path := t.expandIdentityPath(candidate)
		if path == "" || seen[path] {
			continue
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		seen[path] = true
		out = append(out, path)
	}
	return out
}

// expandIdentityPath applies the ssh_config tokens %% %d %h %n %p %r %u and
// resolves relative paths against ~/.ssh.
func (t sshPushTarget) expandIdentityPath(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), `"'`)
	if raw == "" || strings.EqualFold(raw, "none") {
		return ""
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	tokens := map[byte]string{
		'%': "%",
		'd': home,
		'h': t.host,
		'n': t.alias,
		'p': strconv.Itoa(t.port),
		'r': t.user,
		'u': os.Getenv("USER"),
	}
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '%' && i+1 < len(raw) {
			if v, ok := tokens[raw[i+1]]; ok {
				b.WriteString(v)
				i++
				continue
			}
		}
		b.WriteByte(raw[i])
	}
	path := b.String()
	switch {
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(home, path[2:])
	case !filepath.IsAbs(path):
		path = filepath.Join(home, ".ssh", path)
	}
	return filepath.Clean(path)
}

func isSSHAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "attempted methods") ||
		strings.Contains(msg, "permission denied (publickey)")
}
