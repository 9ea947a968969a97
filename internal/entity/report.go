package entity

import (
	"errors"
	"time"
)

// FileResult is one materialized file.
type FileResult struct {
	Package string
	Version string
	Source  string
	Target  string
	Output  string
	Size    int
	Cached  bool
}

// Report aggregates the outcome of a run or of one processor.
type Report struct {
	RunID       string
	Environment string
	StartedAt   time.Time
	Packages    []*Descriptor
	Files       []FileResult
	Errors      []error
}

func (r *Report) Merge(o *Report) {
	if o == nil {
		return
	}

	r.Packages = append(r.Packages, o.Packages...)
	r.Files = append(r.Files, o.Files...)
	r.Errors = append(r.Errors, o.Errors...)
}

func (r *Report) Failed() bool {
	return len(r.Errors) > 0
}

// Err joins every recorded failure, nil when the run succeeded.
func (r *Report) Err() error {
	return errors.Join(r.Errors...)
}

// CacheHits counts files served from the local cache.
func (r *Report) CacheHits() int {
	var n int
	for _, f := range r.Files {
		if f.Cached {
			n++
		}
	}

	return n
}
