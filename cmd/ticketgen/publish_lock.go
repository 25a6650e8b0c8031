package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

var errPublishLocked = errors.New("another publish is running")

// publishLock guards a publish repository against concurrent ticketgen runs.
// The lock file sits next to the repository so worktree staging never sees it.
type publishLock struct {
	path  string
	owner string
}

type publishLockPayload struct {
	Owner     string `json:"owner"`
	PID       int    `json:"pid"`
	Repo      string `json:"repo"`
	Timestamp string `json:"timestamp"`
}

func publishLockPath(repoRoot string) string {
	return filepath.Join(filepath.Dir(repoRoot), "."+filepath.Base(repoRoot)+".lock")
}

func acquirePublishLock(repoRoot string) (*publishLock, error) {
	path := publishLockPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	owner := fmt.Sprintf("%d:%s", os.Getpid(), randomToken())
	payload, err := json.Marshal(publishLockPayload{
		Owner:     owner,
		PID:       os.Getpid(),
		Repo:      repoRoot,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		if _, werr := file.Write(payload); werr != nil {
			_ = file.Close()
			_ = os.Remove(path)
			return nil, werr
		}
		if cerr := file.Close(); cerr != nil {
			_ = os.Remove(path)
			return nil, cerr
		}
		return &publishLock{path: path, owner: owner}, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	current, readErr := readPublishLock(path)
	if readErr == nil && current.PID > 0 && current.PID != os.Getpid() && pidAlive(current.PID) {
		return nil, fmt.Errorf("%w (pid %d holds %s)", errPublishLocked, current.PID, path)
	}

	// Stale: the holder is gone or the file is unreadable.
	tmpPath := path + "." + randomToken() + ".tmp"
	if err := os.WriteFile(tmpPath, payload, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	current, err = readPublishLock(path)
	if err != nil {
		return nil, err
	}
	if current.Owner != owner {
		return nil, fmt.Errorf("%w (pid %d holds %s)", errPublishLocked, current.PID, path)
	}
	return &publishLock{path: path, owner: owner}, nil
}

// Release removes the lock file if it is still owned by this lock.
func (l *publishLock) Release() {
	if l == nil {
		return
	}
	current, err := readPublishLock(l.path)
	if err != nil || current.Owner != l.owner {
		return
	}
	_ = os.Remove(l.path)
}

func readPublishLock(path string) (publishLockPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return publishLockPayload{}, err
	}
	var payload publishLockPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return publishLockPayload{}, err
	}
	return payload, nil
}

func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

func randomToken() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
