package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakePython = `#!/bin/sh
if [ "$1" = "-m" ] && [ "$2" = "venv" ]; then
  if [ -n "$FAKE_VENV_FAIL" ]; then echo "venv: ensurepip is not available" >&2; exit 1; fi
  mkdir -p "$3/bin"
  cat > "$3/bin/python" <<'EOF'
#!/bin/sh
echo "$@" >> "$(dirname "$0")/../../pip.log"
if [ -n "$FAKE_PIP_FAIL" ]; then echo "ERROR: No matching distribution found for nope" >&2; exit 1; fi
exit 0
EOF
  chmod +x "$3/bin/python"
  exit 0
fi
exit 2
`

func withFakePython(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter is a shell script")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "python3")
	require.NoError(t, os.WriteFile(script, []byte(fakePython), 0o755))

	orig := lookPath
	lookPath = func(name string) (string, error) {
		if name == "python3" {
			return script, nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { lookPath = orig })
}

func TestProvision_CreatesVenvAndInstalls(t *testing.T) {
	withFakePython(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "requirements.txt"), []byte("flask\n"), 0o644))

	env, err := NewProvisioner(nil).Provision(context.Background(), root, "requirements.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "venv", "bin", "python"), env.Interpreter)
	assert.FileExists(t, env.Interpreter)

	log, err := os.ReadFile(filepath.Join(root, "pip.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "-m pip install -r "+filepath.Join(root, "requirements.txt"))

	existing, err := NewProvisioner(nil).Existing(root)
	require.NoError(t, err)
	assert.Equal(t, env, existing)
}

func TestProvision_NoManifestSkipsInstall(t *testing.T) {
	withFakePython(t)
	root := t.TempDir()

	env, err := NewProvisioner(nil).Provision(context.Background(), root, "")
	require.NoError(t, err)
	assert.FileExists(t, env.Interpreter)
	assert.NoFileExists(t, filepath.Join(root, "pip.log"))
}

func TestProvision_ReusesExistingVenv(t *testing.T) {
	withFakePython(t)
	root := t.TempDir()
	_, err := NewProvisioner(nil).Provision(context.Background(), root, "")
	require.NoError(t, err)

	t.Setenv("FAKE_VENV_FAIL", "1")
	_, err = NewProvisioner(nil).Provision(context.Background(), root, "")
	assert.NoError(t, err)
}

func TestProvision_InstallFailureCarriesOutput(t *testing.T) {
	withFakePython(t)
	t.Setenv("FAKE_PIP_FAIL", "1")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "requirements.txt"), []byte("nope\n"), 0o644))

	_, err := NewProvisioner(nil).Provision(context.Background(), root, "requirements.txt")
	var provErr *ProvisionError
	require.True(t, errors.As(err, &provErr), "expected ProvisionError, got %v", err)
	assert.Equal(t, ProvisionInstallFailed, provErr.Kind)
	assert.True(t, strings.Contains(provErr.Output, "No matching distribution"))
}

func TestProvision_EnvCreateFailure(t *testing.T) {
	withFakePython(t)
	t.Setenv("FAKE_VENV_FAIL", "1")

	_, err := NewProvisioner(nil).Provision(context.Background(), t.TempDir(), "")
	var provErr *ProvisionError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, ProvisionEnvCreateFailed, provErr.Kind)
}

func TestProvision_PythonMissing(t *testing.T) {
	orig := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	t.Cleanup(func() { lookPath = orig })

	_, err := NewProvisioner(nil).Provision(context.Background(), t.TempDir(), "")
	var provErr *ProvisionError
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, ProvisionToolMissing, provErr.Kind)
	assert.True(t, errors.Is(err, errPythonNotInstalled))
}

func TestExisting_RequiresInterpreter(t *testing.T) {
	_, err := NewProvisioner(nil).Existing(t.TempDir())
	assert.Error(t, err)
}
