package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	DefaultEnvironment = "development"
	DefaultVersion     = "master"

	GibletFileName    = "giblet.json"
	ComponentFileName = "component.json"
	ComponentMainName = "index.js"
)

// Manifest maps an environment name to its dependency set.
type Manifest map[string]DependencySet

type DependencySet struct {
	Giblethub []RawEntry                  `json:"giblethub"`
	Component map[string]ComponentVersion `json:"component"`
}

// ComponentVersion is the value of one "owner/repo": "version" component pair.
// A value that is not a JSON string keeps its error in Err so that only its
// component fails.
type ComponentVersion struct {
	Version string
	Err     error
}

func (v *ComponentVersion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &v.Version)
	}

	v.Err = fmt.Errorf("component version must be a string: %s", string(data))

	return nil
}

// GibletSpec is the object form of a hub entry and the shape of a remote giblet.json.
// Unset optional fields are nil or empty so that merges can tell them apart from
// explicit values.
type GibletSpec struct {
	Name    string       `json:"name,omitempty"`
	Repo    string       `json:"repo,omitempty"`
	Path    *string      `json:"path,omitempty"`
	Version string       `json:"version,omitempty"`
	Type    ModuleFormat `json:"type,omitempty"`
	Adapt   *bool        `json:"adapt,omitempty"`
	Scripts []FileRef    `json:"scripts,omitempty"`
	Styles  []FileRef    `json:"styles,omitempty"`
	Files   []FileRef    `json:"files,omitempty"`
	Fonts   []FileRef    `json:"fonts,omitempty"`
}

// HasFiles reports whether any file list was declared, even an empty one.
func (s *GibletSpec) HasFiles() bool {
	return s.Scripts != nil || s.Styles != nil || s.Files != nil || s.Fonts != nil
}

// ComponentFile is the remote component.json descriptor.
type ComponentFile struct {
	Name    string    `json:"name"`
	Main    string    `json:"main"`
	Scripts []FileRef `json:"scripts"`
	Styles  []FileRef `json:"styles"`
	Files   []FileRef `json:"files"`
	Fonts   []FileRef `json:"fonts"`
	Images  []FileRef `json:"images"`
}

// RawEntry is one giblethub manifest item: either the compact string form or an object.
// An item that cannot be decoded keeps its error in Err so that it fails on its own
// instead of failing the whole manifest.
type RawEntry struct {
	Short string
	Spec  *GibletSpec
	Err   error
}

func (e *RawEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case len(data) > 0 && data[0] == '"':
		return json.Unmarshal(data, &e.Short)
	case len(data) > 0 && data[0] == '{':
		var spec GibletSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			e.Err = fmt.Errorf("cannot decode giblet entry %s: %w", string(data), err)

			return nil
		}
		e.Spec = &spec
	default:
		e.Err = fmt.Errorf("giblet entry must be a string or an object: %s", string(data))
	}

	return nil
}

func (e RawEntry) MarshalJSON() ([]byte, error) {
	if e.Spec != nil {
		return json.Marshal(e.Spec)
	}

	return json.Marshal(e.Short)
}

func (e RawEntry) String() string {
	if e.Err != nil {
		return "<invalid>"
	}

	if e.Spec != nil {
		return e.Spec.Repo + "@" + e.Spec.Version
	}

	return e.Short
}
