package validation

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"stega_backend/core"
	"stega_backend/stegamodel"
)

// CheckEnvFile reports whether the .env file exists. A missing file is a
// warning since every setting can come from the process environment.
func CheckEnvFile(path string) (StepStatus, string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return StepWarning, "Not found, using process environment", core.ErrEnvFileMissing(path)
	}
	if err != nil {
		return StepFailed, "Cannot read", err
	}
	if info.IsDir() {
		return StepFailed, "Is a directory", fmt.Errorf("%s is a directory", path)
	}
	return StepPassed, path, nil
}

// CheckModelDir resolves the default model the same way requests without a
// model name do. Failure is a warning: requests that name a model still work.
func CheckModelDir(cfg *core.Config) (StepStatus, string, error) {
	dir, err := stegamodel.ResolveModelDir(cfg.ModelsDir, "", cfg.ModelDir)
	if err != nil {
		return StepWarning, "No default model", core.ErrModelNotFound(cfg.ModelsDir, err.Error())
	}
	if err := stegamodel.ValidateModelDir(dir); err != nil {
		return StepWarning, "Default model unusable", core.ErrModelNotFound(dir, err.Error())
	}
	return StepPassed, dir, nil
}

// CheckServing probes the model server. Any HTTP response counts as
// reachable; TensorFlow Serving answers 404 on its root path.
func CheckServing(cfg *core.Config, timeout time.Duration) (StepStatus, string, error) {
	if err := core.ValidateServerURL(cfg.ServingURL); err != nil {
		return StepFailed, "Invalid URL", core.ErrInvalidServingURL(cfg.ServingURL, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ServingURL, nil)
	if err != nil {
		return StepFailed, "Invalid request", core.ErrInvalidServingURL(cfg.ServingURL, err.Error())
	}

	start := time.Now()
	resp, err := core.GetHTTPClient(cfg, timeout).Do(req)
	if err != nil {
		return StepWarning, "Unreachable", core.ErrServingUnreachable(cfg.ServingURL, err.Error())
	}
	resp.Body.Close()
	return StepPassed, fmt.Sprintf("%s (%dms)", cfg.ServingURL, time.Since(start).Milliseconds()), nil
}

// CheckHistoryDir ensures the history database directory exists.
func CheckHistoryDir(cfg *core.Config) (StepStatus, string, error) {
	if !cfg.HistoryEnabled {
		return StepSkipped, "History disabled", nil
	}
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return StepFailed, "Cannot create directory", fmt.Errorf("create %s: %w", dir, err)
	}
	return StepPassed, cfg.DBPath, nil
}

// CheckTmpDir ensures TMP_DIR is writable when debug saving is on.
func CheckTmpDir(cfg *core.Config) (StepStatus, string, error) {
	if !cfg.DebugSave {
		return StepSkipped, "DEBUG_SAVE off", nil
	}
	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		return StepFailed, "Cannot create directory", fmt.Errorf("create %s: %w", cfg.TmpDir, err)
	}
	f, err := os.CreateTemp(cfg.TmpDir, ".write-check-*")
	if err != nil {
		return StepFailed, "Not writable", fmt.Errorf("write to %s: %w", cfg.TmpDir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return StepPassed, cfg.TmpDir, nil
}
