package stegamodel

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SavedModel graph file names accepted in a model directory.
var savedModelFiles = []string{"saved_model.pb", "saved_model.pbtxt"}

// ValidateModelDir checks that dir is a directory holding a SavedModel graph.
func ValidateModelDir(dir string) error {
	if dir == "" {
		return wrapErr("validate", dir, ErrModelNotFound, fmt.Errorf("model path is empty"))
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return wrapErr("validate", dir, ErrModelNotFound, nil)
	}
	if err != nil {
		return wrapErr("validate", dir, ErrModelNotFound, err)
	}
	if !info.IsDir() {
		return wrapErr("validate", dir, ErrModelNotFound, fmt.Errorf("not a directory"))
	}

	for _, name := range savedModelFiles {
		if fi, err := os.Stat(filepath.Join(dir, name)); err == nil && !fi.IsDir() {
			return nil
		}
	}
	return wrapErr("validate", dir, ErrModelNotFound, fmt.Errorf("no saved_model.pb or saved_model.pbtxt"))
}

// ListModels returns the sorted names of subdirectories of root.
// A missing root yields an empty list.
func ListModels(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list models in %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ResolveModelDir picks the model directory for a request:
//  1. root/name when a name is given
//  2. fallback (the configured MODEL_DIR) when set
//  3. the only subdirectory of root
//
// Anything else is an error. The named directory is not checked for
// existence here; loading reports that.
func ResolveModelDir(root, name, fallback string) (string, error) {
	if name != "" {
		if name != filepath.Base(name) || name == "." || name == ".." {
			return "", fmt.Errorf("invalid model name %q", name)
		}
		return filepath.Join(root, name), nil
	}
	if fallback != "" {
		return fallback, nil
	}

	models, err := ListModels(root)
	if err != nil {
		return "", err
	}
	if len(models) == 1 {
		return filepath.Join(root, models[0]), nil
	}
	return "", fmt.Errorf("MODEL_DIR not set and multiple/no models found")
}
