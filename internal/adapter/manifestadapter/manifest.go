package manifestadapter

import (
	"encoding/json"
	"fmt"

	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
)

type FileReader interface {
	Read(path string) ([]byte, error)
}

// LoadManifest reads and decodes the manifest file at path.
func LoadManifest(reader FileReader, path string) (entity.Manifest, error) {
	data, err := reader.Read(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read manifest: %w", err)
	}

	return DecodeManifest(data)
}

func DecodeManifest(data []byte) (entity.Manifest, error) {
	var m entity.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidManifest, err)
	}

	return m, nil
}

// DecodeGibletFile decodes a remote giblet.json.
func DecodeGibletFile(data []byte) (*entity.GibletSpec, error) {
	var spec entity.GibletSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidManifest, entity.GibletFileName, err)
	}

	return &spec, nil
}

// DecodeComponentFile decodes a remote component.json.
func DecodeComponentFile(data []byte) (*entity.ComponentFile, error) {
	var cf entity.ComponentFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidManifest, entity.ComponentFileName, err)
	}

	return &cf, nil
}

// DependencySet selects the dependencies of env; a missing environment is empty.
func DependencySet(m entity.Manifest, env string) entity.DependencySet {
	if env == "" {
		env = entity.DefaultEnvironment
	}

	set := m[env]
	if set.Component == nil {
		set.Component = map[string]entity.ComponentVersion{}
	}

	return set
}
