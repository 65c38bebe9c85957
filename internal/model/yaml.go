package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DecodeInstance parses a YAML problem-instance document.
func DecodeInstance(data []byte) (Instance, error) {
	var in Instance
	if err := yaml.Unmarshal(data, &in); err != nil {
		return Instance{}, fmt.Errorf("decode instance: %w", err)
	}
	return in, nil
}

// LoadInstance reads and parses a YAML instance file.
func LoadInstance(path string) (Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Instance{}, err
	}
	return DecodeInstance(data)
}

// EncodeInstance renders an instance back to YAML, e.g. for export.
func EncodeInstance(in Instance) ([]byte, error) {
	return yaml.Marshal(in)
}
