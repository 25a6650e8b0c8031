package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const projectEnvFile = ".env"

// writeProjectEnv fills the generated .env template with the real secret
// values. Keys the template declares that we have no value for are kept.
func writeProjectEnv(root string, secrets map[string]string) error {
	if len(secrets) == 0 {
		return nil
	}
	path := filepath.Join(root, projectEnvFile)
	values := map[string]string{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		parsed, perr := godotenv.Unmarshal(string(data))
		if perr != nil {
			return fmt.Errorf("parse generated %s: %w", projectEnvFile, perr)
		}
		values = parsed
	case errors.Is(err, os.ErrNotExist):
	default:
		return err
	}
	for k, v := range secrets {
		values[k] = v
	}
	content, err := godotenv.Marshal(values)
	if err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file, so tighten it first.
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(content+"\n"), 0o600)
}
