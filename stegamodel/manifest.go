package stegamodel

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the optional per-model description file.
const ManifestFile = "model.yaml"

// DefaultSignatureName is the TensorFlow default serving signature key.
const DefaultSignatureName = "serving_default"

// Manifest describes a model directory.
//
// Example model.yaml:
//
//	name: StegaStamp 100-bit
//	description: trained on MIRFLICKR, 400x400 input
//	serving_model: stegastamp
//	encode_signature: serving_default
//	decode_signature: serving_default
type Manifest struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	ServingModel    string `yaml:"serving_model"`
	EncodeSignature string `yaml:"encode_signature"`
	DecodeSignature string `yaml:"decode_signature"`
}

// LoadManifest reads dir/model.yaml. A missing file yields defaults derived
// from the directory name.
func LoadManifest(dir string) (Manifest, error) {
	m := Manifest{}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Manifest{}, fmt.Errorf("read %s: %w", ManifestFile, err)
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse %s: %w", ManifestFile, err)
		}
	}

	m.applyDefaults(filepath.Base(filepath.Clean(dir)))
	return m, nil
}

func (m *Manifest) applyDefaults(dirName string) {
	if m.Name == "" {
		m.Name = dirName
	}
	if m.ServingModel == "" {
		m.ServingModel = dirName
	}
	if m.EncodeSignature == "" {
		m.EncodeSignature = DefaultSignatureName
	}
	if m.DecodeSignature == "" {
		m.DecodeSignature = DefaultSignatureName
	}
}
