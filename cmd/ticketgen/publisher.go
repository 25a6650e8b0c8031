package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
)

const (
	pendingChangesMessage = "Save pending changes before switching branches"
	initialCommitMessage  = "Initial commit"
	initialReadme         = "# Initial Commit\n"
)

var publishSkipNames = map[string]bool{
	".git":          true,
	venvDir:         true,
	"__pycache__":   true,
	projectEnvFile:  true,
	".DS_Store":     true,
	".pytest_cache": true,
}

type PublisherOptions struct {
	ProjectsDir   string
	RepoDir       string
	RemoteRepo    string
	DefaultBranch string
	Policy        string
	Token         string
}

// Publisher copies each generated project onto its own branch of a local
// repository and pushes that branch.
type Publisher struct {
	opts   PublisherOptions
	host   HostingClient
	prompt Prompter
	out    io.Writer
	log    *logrus.Logger
}

type PublishResult struct {
	Published []string
	Unchanged []string
	Failed    map[string]error
}

func NewPublisher(opts PublisherOptions, host HostingClient, prompt Prompter, out io.Writer, log *logrus.Logger) *Publisher {
	opts.ProjectsDir = orDefault(strings.TrimSpace(opts.ProjectsDir), defaultProjectsDir)
	opts.RepoDir = orDefault(strings.TrimSpace(opts.RepoDir), defaultPublishDir)
	opts.RemoteRepo = orDefault(strings.TrimSpace(opts.RemoteRepo), defaultRemoteRepo)
	opts.DefaultBranch = orDefault(strings.TrimSpace(opts.DefaultBranch), defaultBranchName)
	opts.Policy = orDefault(strings.TrimSpace(opts.Policy), policyAbort)
	if out == nil {
		out = io.Discard
	}
	if log == nil {
		log = discardLogger()
	}
	return &Publisher{opts: opts, host: host, prompt: prompt, out: out, log: log}
}

// ListProjects returns the project directory names under dir, sorted.
func ListProjects(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

type publishSession struct {
	repo     *git.Repository
	wt       *git.Worktree
	root     string
	identity GitIdentity
}

func (p *Publisher) Publish(ctx context.Context, projects []string) (PublishResult, error) {
	result := PublishResult{Failed: map[string]error{}}
	// Generated projects hold .env secrets; a publish repo inside them, or
	// around them, would commit those files.
	if err := checkSeparateDirs(p.opts.ProjectsDir, p.opts.RepoDir); err != nil {
		return result, &ConfigError{Err: err}
	}
	if len(projects) == 0 {
		all, err := ListProjects(p.opts.ProjectsDir)
		if err != nil {
			return result, err
		}
		projects = all
	}
	if len(projects) == 0 {
		return result, errNoProjects
	}
	for _, name := range projects {
		if err := validateProjectDirName(name); err != nil {
			return result, err
		}
		if err := p.validateBranchName(name); err != nil {
			return result, &PublishError{Project: name, Step: "validate branch name", Err: err}
		}
		info, err := os.Stat(filepath.Join(p.opts.ProjectsDir, name))
		if err != nil || !info.IsDir() {
			return result, &PublishError{Project: name, Step: "locate project", Err: fmt.Errorf("no project directory in %s", p.opts.ProjectsDir)}
		}
	}

	root, err := filepath.Abs(p.opts.RepoDir)
	if err != nil {
		return result, err
	}
	lock, err := acquirePublishLock(root)
	if err != nil {
		return result, &PublishError{Step: "lock repository", Err: err}
	}
	defer lock.Release()

	s, err := p.setup(ctx, root)
	if err != nil {
		return result, err
	}

	for _, name := range projects {
		changed, err := p.publishProject(ctx, s, name)
		if err != nil {
			result.Failed[name] = err
			fmt.Fprintf(p.out, "✗ %s: %v\n", name, err)
			if p.opts.Policy != policyContinue {
				return result, err
			}
			continue
		}
		if changed {
			result.Published = append(result.Published, name)
			fmt.Fprintf(p.out, "✓ Published %s\n", name)
		} else {
			result.Unchanged = append(result.Unchanged, name)
			fmt.Fprintf(p.out, "- %s has no changes\n", name)
		}
	}
	if len(result.Failed) > 0 {
		names := make([]string, 0, len(result.Failed))
		for name := range result.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		return result, fmt.Errorf("publish failed for %d project(s): %s", len(names), strings.Join(names, ", "))
	}
	return result, nil
}

// validateBranchName rejects project names that cannot become a branch of
// their own. The default branch only ever carries the initial README.
func (p *Publisher) validateBranchName(name string) error {
	if name == p.opts.DefaultBranch {
		return fmt.Errorf("project name %q collides with the default branch", name)
	}
	if err := plumbing.NewBranchReferenceName(name).Validate(); err != nil {
		return fmt.Errorf("project name %q is not a valid branch name: %w", name, err)
	}
	return nil
}

// setup prepares the repository once: identity, initial commit, remote and
// an upstream default branch.
func (p *Publisher) setup(ctx context.Context, root string) (*publishSession, error) {
	repo, created, err := openOrInitRepo(root, p.opts.DefaultBranch)
	if err != nil {
		return nil, &PublishError{Step: "open repository", Err: err}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, &PublishError{Step: "open repository", Err: err}
	}
	s := &publishSession{repo: repo, wt: wt, root: root}

	s.identity = repoIdentity(repo)
	if !s.identity.complete() {
		if p.prompt == nil {
			return nil, &PublishError{Step: "git identity", Err: errors.New("user.name and user.email are not configured")}
		}
		id, err := p.prompt.GitIdentity(s.identity)
		if err != nil {
			return nil, err
		}
		if !id.complete() {
			return nil, &PublishError{Step: "git identity", Err: errors.New("name and email are required")}
		}
		if err := saveRepoIdentity(repo, id); err != nil {
			return nil, &PublishError{Step: "git identity", Err: err}
		}
		s.identity = id
	}

	if created || headIsUnborn(repo) {
		if err := p.initialCommit(s); err != nil {
			return nil, &PublishError{Step: "initial commit", Err: err}
		}
	}

	if err := p.ensureRemote(ctx, s); err != nil {
		return nil, err
	}
	if err := p.ensureDefaultBranch(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *Publisher) initialCommit(s *publishSession) error {
	readme := filepath.Join(s.root, "README.md")
	if _, err := os.Stat(readme); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(readme, []byte(initialReadme), 0o644); err != nil {
			return err
		}
	}
	if _, err := stageAll(s.wt); err != nil {
		return err
	}
	_, err := commitStaged(s.wt, initialCommitMessage, s.identity)
	return err
}

func (p *Publisher) ensureRemote(ctx context.Context, s *publishSession) error {
	url, ok, err := remoteURL(s.repo, originRemote)
	if err != nil {
		return &PublishError{Step: "remote", Err: err}
	}
	if ok {
		p.log.WithField("url", url).Debug("reusing existing remote")
		return nil
	}
	if p.host == nil {
		return &PublishError{Step: "remote", Err: errors.New("no hosting client configured")}
	}
	url, err = p.host.EnsureRepository(ctx, p.opts.RemoteRepo)
	if err != nil {
		return &PublishError{Step: "create remote repository", Err: err}
	}
	if _, err := s.repo.CreateRemote(&config.RemoteConfig{Name: originRemote, URLs: []string{url}}); err != nil {
		return &PublishError{Step: "remote", Err: err}
	}
	fmt.Fprintf(p.out, "Added remote %s: %s\n", originRemote, url)
	return nil
}

func (p *Publisher) ensureDefaultBranch(ctx context.Context, s *publishSession) error {
	branch := p.opts.DefaultBranch
	hash, ok, err := branchHash(s.repo, branch)
	if err != nil {
		return &PublishError{Step: "default branch", Err: err}
	}
	if !ok {
		head, err := s.repo.Head()
		if err != nil {
			return &PublishError{Step: "default branch", Err: err}
		}
		hash = head.Hash()
		ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), hash)
		if err := s.repo.Storer.SetReference(ref); err != nil {
			return &PublishError{Step: "default branch", Err: err}
		}
	}
	upstream, err := hasUpstream(s.repo, branch)
	if err != nil {
		return &PublishError{Step: "default branch", Err: err}
	}
	if upstream {
		return nil
	}
	if err := pushBranch(ctx, s.repo, originRemote, branch, p.opts.Token); err != nil {
		return &PublishError{Step: "push " + branch, Err: err}
	}
	if err := setUpstream(s.repo, branch, originRemote); err != nil {
		return &PublishError{Step: "default branch", Err: err}
	}
	p.log.WithFields(logrus.Fields{"branch": branch, "hash": hash.String()}).Debug("default branch pushed")
	return nil
}

// publishProject returns whether a new commit was pushed. The original
// branch is restored before returning.
func (p *Publisher) publishProject(ctx context.Context, s *publishSession, name string) (changed bool, err error) {
	fail := func(step string, err error) error {
		return &PublishError{Project: name, Step: step, Err: err}
	}

	dirty, err := stageAll(s.wt)
	if err != nil {
		return false, fail("save pending changes", err)
	}
	if dirty {
		if _, err := commitStaged(s.wt, pendingChangesMessage, s.identity); err != nil {
			return false, fail("save pending changes", err)
		}
	}

	original, err := currentBranch(s.repo)
	if err != nil {
		return false, fail("read current branch", err)
	}
	defer func() {
		if original == "" {
			return
		}
		if rerr := p.restoreBranch(s, original, err != nil); rerr != nil {
			p.log.WithError(rerr).WithField("branch", original).Warn("could not restore original branch")
		}
	}()

	if err := p.checkoutProjectBranch(s, name); err != nil {
		return false, fail("checkout branch", err)
	}
	if err := s.wt.Reset(&git.ResetOptions{Mode: git.MixedReset}); err != nil {
		return false, fail("reset staging", err)
	}
	if err := clearWorktree(s.root); err != nil {
		return false, fail("clear worktree", err)
	}
	if err := copyProjectTree(filepath.Join(p.opts.ProjectsDir, name), s.root); err != nil {
		return false, fail("copy files", err)
	}
	staged, err := stageAll(s.wt)
	if err != nil {
		return false, fail("stage", err)
	}
	if !staged {
		return false, nil
	}
	if _, err := commitStaged(s.wt, fmt.Sprintf("Update %s project", name), s.identity); err != nil {
		return false, fail("commit", err)
	}
	if err := pushBranch(ctx, s.repo, originRemote, name, p.opts.Token); err != nil {
		return false, fail("push", err)
	}
	return true, nil
}

func (p *Publisher) checkoutProjectBranch(s *publishSession, name string) error {
	ref := plumbing.NewBranchReferenceName(name)
	_, exists, err := branchHash(s.repo, name)
	if err != nil {
		return err
	}
	if exists {
		return s.wt.Checkout(&git.CheckoutOptions{Branch: ref})
	}
	base, ok, err := branchHash(s.repo, p.opts.DefaultBranch)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("default branch %q not found", p.opts.DefaultBranch)
	}
	return s.wt.Checkout(&git.CheckoutOptions{Hash: base, Branch: ref, Create: true})
}

// restoreBranch is best-effort. After a failed step the tree may hold
// another project's files, so it is forced clean.
func (p *Publisher) restoreBranch(s *publishSession, branch string, force bool) error {
	current, err := currentBranch(s.repo)
	if err == nil && current == branch && !force {
		return nil
	}
	opts := &git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Force: force}
	if err := s.wt.Checkout(opts); err != nil {
		return err
	}
	if force {
		return s.wt.Clean(&git.CleanOptions{Dir: true})
	}
	return nil
}

// copyProjectTree copies src into dst, skipping environments, caches and
// local secrets.
func copyProjectTree(src string, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if publishSkipNames[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src string, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
