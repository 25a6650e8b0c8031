package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

func TestOpenOrInitRepo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "published")
	repo, created, err := openOrInitRepo(dir, "main")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !created {
		t.Fatalf("expected repository to be created")
	}
	if !headIsUnborn(repo) {
		t.Fatalf("expected unborn HEAD in a fresh repository")
	}
	head, err := repo.Storer.Reference("HEAD")
	if err != nil {
		t.Fatalf("read HEAD: %v", err)
	}
	if got := head.Target().Short(); got != "main" {
		t.Fatalf("expected HEAD to point at main, got %q", got)
	}

	_, created, err = openOrInitRepo(dir, "main")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if created {
		t.Fatalf("expected existing repository to be reused")
	}
}

func TestStageAllIncludesDeletions(t *testing.T) {
	dir := t.TempDir()
	repo, _, err := openOrInitRepo(dir, "main")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	id := GitIdentity{Name: "Dev", Email: "dev@example.com"}

	writeTestFile(t, filepath.Join(dir, "a.txt"), "a")
	writeTestFile(t, filepath.Join(dir, "nested", "b.txt"), "b")
	changed, err := stageAll(wt)
	if err != nil || !changed {
		t.Fatalf("expected staged changes, got %v, %v", changed, err)
	}
	if _, err := commitStaged(wt, "first", id); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "a.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	changed, err = stageAll(wt)
	if err != nil || !changed {
		t.Fatalf("expected deletion to be staged, got %v, %v", changed, err)
	}
	hash, err := commitStaged(wt, "second", id)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	commit, err := repo.CommitObject(hash)
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	if _, err := commit.File("a.txt"); err == nil {
		t.Fatalf("expected a.txt to be gone from the commit")
	}
	if _, err := commit.File("nested/b.txt"); err != nil {
		t.Fatalf("expected nested/b.txt in the commit: %v", err)
	}

	changed, err = stageAll(wt)
	if err != nil || changed {
		t.Fatalf("expected clean worktree, got %v, %v", changed, err)
	}
}

func TestClearWorktreeKeepsGitDir(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := openOrInitRepo(dir, "main"); err != nil {
		t.Fatalf("init: %v", err)
	}
	writeTestFile(t, filepath.Join(dir, "a.txt"), "a")
	writeTestFile(t, filepath.Join(dir, "src", "main.py"), "x")

	if err := clearWorktree(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != ".git" {
		t.Fatalf("expected only .git to remain, got %v", entries)
	}
}

func TestUpstreamConfig(t *testing.T) {
	repo, _, err := openOrInitRepo(t.TempDir(), "main")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	ok, err := hasUpstream(repo, "main")
	if err != nil || ok {
		t.Fatalf("expected no upstream, got %v, %v", ok, err)
	}
	if err := setUpstream(repo, "main", originRemote); err != nil {
		t.Fatalf("set upstream: %v", err)
	}
	ok, err = hasUpstream(repo, "main")
	if err != nil || !ok {
		t.Fatalf("expected upstream, got %v, %v", ok, err)
	}
}

func TestRemoteURLMissing(t *testing.T) {
	repo, _, err := openOrInitRepo(t.TempDir(), "main")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, ok, err := remoteURL(repo, originRemote)
	if err != nil || ok {
		t.Fatalf("expected missing remote, got %v, %v", ok, err)
	}
	if _, _, err := remoteEndpoint(repo, originRemote); err == nil {
		t.Fatalf("expected error for missing remote")
	}
}

func TestPushAuthMethod(t *testing.T) {
	https, err := transport.NewEndpoint("https://github.com/octo/yorkhack.git")
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	auth, usedAgent, err := pushAuthMethod(https, https.String(), "gh-token")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	basic, ok := auth.(*githttp.BasicAuth)
	if !ok || usedAgent {
		t.Fatalf("expected basic auth without agent, got %T", auth)
	}
	if basic.Username != "x-access-token" || basic.Password != "gh-token" {
		t.Fatalf("unexpected basic auth %q/%q", basic.Username, basic.Password)
	}

	auth, _, err = pushAuthMethod(https, https.String(), "")
	if err != nil || auth != nil {
		t.Fatalf("expected no auth without token, got %v, %v", auth, err)
	}

	local, err := transport.NewEndpoint(t.TempDir())
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	auth, _, err = pushAuthMethod(local, local.String(), "gh-token")
	if err != nil || auth != nil {
		t.Fatalf("expected no auth for a local remote, got %v, %v", auth, err)
	}
}

func stubSSHConfig(t *testing.T, values map[string]string, identities []string) {
	t.Helper()
	origGet, origGetAll := sshConfigGet, sshConfigGetAll
	t.Cleanup(func() {
		sshConfigGet = origGet
		sshConfigGetAll = origGetAll
	})
	sshConfigGet = func(_ string, key string) string { return values[key] }
	sshConfigGetAll = func(string, string) []string { return identities }
}

func TestSSHPushTarget_ExpandIdentityPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USER", "dev")
	target := sshPushTarget{alias: "gh-work", host: "github.com", port: 2222, user: "git"}

	cases := map[string]string{
		"~/.ssh/id_work":    filepath.Join(home, ".ssh", "id_work"),
		"id_%h_%r":          filepath.Join(home, ".ssh", "id_github.com_git"),
		"id_%n_%p":          filepath.Join(home, ".ssh", "id_gh-work_2222"),
		"%d/keys/id":        filepath.Join(home, "keys", "id"),
		`"/keys/%u/id_rsa"`: filepath.Clean("/keys/dev/id_rsa"),
		"/keys/100%%h/id":   filepath.Clean("/keys/100%h/id"),
		"none":              "",
		"   ":               "",
	}
	for raw, want := range cases {
		if got := target.expandIdentityPath(raw); got != want {
			t.Fatalf("expandIdentityPath(%q): expected %q, got %q", raw, want, got)
		}
	}
}

func TestSSHPushTarget_IdentityFilesOrderAndExistence(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	sshDir := filepath.Join(home, ".ssh")
	writeTestFile(t, filepath.Join(sshDir, "id_custom"), "key")
	writeTestFile(t, filepath.Join(sshDir, "id_rsa"), "key")
	stubSSHConfig(t, nil, []string{"~/.ssh/id_custom", "~/.ssh/id_missing", "~/.ssh/id_rsa"})

	got := sshPushTarget{alias: "github.com", host: "github.com", user: "git"}.identityFiles()
	want := []string{filepath.Join(sshDir, "id_custom"), filepath.Join(sshDir, "id_rsa")}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSSHPushTarget_IdentitiesOnlySkipsDefaultKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeTestFile(t, filepath.Join(home, ".ssh", "id_ed25519"), "key")
	stubSSHConfig(t, map[string]string{"IdentitiesOnly": "yes"}, nil)

	if got := (sshPushTarget{alias: "github.com", user: "git"}).identityFiles(); len(got) != 0 {
		t.Fatalf("expected no identity files, got %v", got)
	}
}

func TestSSHKeyFileAuthWithoutKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	stubSSHConfig(t, nil, nil)

	endpoint := &transport.Endpoint{Protocol: "ssh", Host: "github.com"}
	if _, err := sshKeyFileAuthForEndpoint(endpoint, "git@github.com:octo/x.git"); err == nil {
		t.Fatalf("expected error without keys")
	}
}

func TestNewSSHPushTarget(t *testing.T) {
	stubSSHConfig(t, nil, nil)
	target := newSSHPushTarget(&transport.Endpoint{Host: "github.com"}, "")
	if target.user != "git" || target.host != "github.com" || target.port != 22 {
		t.Fatalf("unexpected defaults: %+v", target)
	}

	stubSSHConfig(t, map[string]string{"User": "deploy", "HostName": "ssh.github.com"}, nil)
	target = newSSHPushTarget(&transport.Endpoint{Host: "gh-work", Port: 443}, "")
	if target.user != "deploy" || target.host != "ssh.github.com" || target.alias != "gh-work" || target.port != 443 {
		t.Fatalf("unexpected config resolution: %+v", target)
	}

	if got := newSSHPushTarget(&transport.Endpoint{Host: "github.com", User: "alice"}, "").user; got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}
}

func TestIsSSHAuthFailure(t *testing.T) {
	if !isSSHAuthFailure(errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none publickey]")) {
		t.Fatalf("expected auth failure")
	}
	if isSSHAuthFailure(errors.New("repository not found")) {
		t.Fatalf("unexpected auth failure")
	}
	if isSSHAuthFailure(nil) {
		t.Fatalf("nil is not a failure")
	}
}

func writeTestFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
