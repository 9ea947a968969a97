package entity

import (
	"encoding/json"
	"fmt"
)

// FileRef is a single file of a package: a source path relative to the package's
// repository coordinates and the file name it is materialized under.
type FileRef struct {
	Source string // Path below the descriptor's SubPath
	Target string // Destination name, Source when empty
}

// Dest returns the destination name of the file.
func (f FileRef) Dest() string {
	if f.Target == "" {
		return f.Source
	}

	return f.Target
}

type fileRefObject struct {
	File       string `json:"file"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	TargetName string `json:"targetName"`
}

// UnmarshalJSON accepts either a bare path or a {file|source, target|targetName} object.
func (f *FileRef) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		*f = FileRef{Source: path}

		return nil
	}

	var obj fileRefObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("cannot decode file reference %s: %w", string(data), err)
	}

	f.Source = obj.File
	if obj.Source != "" {
		f.Source = obj.Source
	}

	f.Target = obj.Target
	if obj.TargetName != "" {
		f.Target = obj.TargetName
	}

	return nil
}

func (f FileRef) MarshalJSON() ([]byte, error) {
	if f.Target == "" || f.Target == f.Source {
		return json.Marshal(f.Source)
	}

	return json.Marshal(fileRefObject{File: f.Source, Target: f.Target})
}
