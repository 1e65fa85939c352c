// Package snapshot reads analytics snapshots from json or yaml files.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/shuttle-backend-go/internal/models"
)

// LoadFile decodes a snapshot file; the format follows the extension (.json, .yaml, .yml)
func LoadFile(path string) (*models.AnalyticsData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return DecodeJSON(f)
	case ".yaml", ".yml":
		return DecodeYAML(f)
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", ext)
	}
}

// DecodeJSON decodes a json snapshot
func DecodeJSON(r io.Reader) (*models.AnalyticsData, error) {
	var data models.AnalyticsData
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode json snapshot: %w", err)
	}
	return &data, nil
}

// DecodeYAML decodes a yaml snapshot. Keys use the same names as the json form.
func DecodeYAML(r io.Reader) (*models.AnalyticsData, error) {
	var doc interface{}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &models.AnalyticsData{}, nil
		}
		return nil, fmt.Errorf("failed to decode yaml snapshot: %w", err)
	}

	// Round-trip through json so the json tags and custom decoders apply
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert yaml snapshot: %w", err)
	}
	var data models.AnalyticsData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to decode yaml snapshot: %w", err)
	}
	return &data, nil
}
