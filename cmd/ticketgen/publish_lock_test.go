package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishLock_AcquireAndRelease(t *testing.T) {
	root := filepath.Join(t.TempDir(), "published")
	lock, err := acquirePublishLock(root)
	require.NoError(t, err)
	assert.FileExists(t, publishLockPath(root))
	assert.NoDirExists(t, root)

	payload, err := readPublishLock(publishLockPath(root))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), payload.PID)
	assert.Equal(t, root, payload.Repo)

	lock.Release()
	assert.NoFileExists(t, publishLockPath(root))

	lock, err = acquirePublishLock(root)
	require.NoError(t, err)
	lock.Release()
}

func TestPublishLock_HeldByLiveProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	root := filepath.Join(t.TempDir(), "published")
	data, err := json.Marshal(publishLockPayload{Owner: "other", PID: cmd.Process.Pid, Repo: root})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(publishLockPath(root), data, 0o644))

	_, err = acquirePublishLock(root)
	assert.True(t, errors.Is(err, errPublishLocked), "expected errPublishLocked, got %v", err)
}

func TestPublishLock_StaleLockIsReplaced(t *testing.T) {
	root := filepath.Join(t.TempDir(), "published")
	require.NoError(t, os.WriteFile(publishLockPath(root), []byte("not json"), 0o644))

	lock, err := acquirePublishLock(root)
	require.NoError(t, err)
	payload, err := readPublishLock(publishLockPath(root))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), payload.PID)
	lock.Release()
	assert.NoFileExists(t, publishLockPath(root))
}

func TestPublishLock_ReleaseKeepsForeignLock(t *testing.T) {
	root := filepath.Join(t.TempDir(), "published")
	lock, err := acquirePublishLock(root)
	require.NoError(t, err)

	data, err := json.Marshal(publishLockPayload{Owner: "someone-else", PID: 1, Repo: root})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(publishLockPath(root), data, 0o644))

	lock.Release()
	assert.FileExists(t, publishLockPath(root))
}

func TestPidAlive(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(0))
	assert.False(t, pidAlive(-4))
}
