package manifestadapter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/util"
)

const (
	noAdaptMarker  = "&"
	versionMarker  = "@"
	repoSeparator  = "/"
	componentParts = 2
)

var componentVersionRegexp = regexp.MustCompile(`^[-0-9a-zA-Z._]+$`)

// RunDefaults are the run-level values a descriptor falls back to.
type RunDefaults struct {
	Adapt      bool
	OutputBase string
}

// Normalize turns one hub entry into a descriptor. When the entry declares no file
// lists the descriptor is nil and the returned spec must be merged with the remote
// giblet.json before Finalize.
func Normalize(entry entity.RawEntry, defaults RunDefaults) (*entity.Descriptor, *entity.GibletSpec, error) {
	spec, err := ParseEntry(entry)
	if err != nil {
		return nil, nil, err
	}

	if !spec.HasFiles() {
		return nil, spec, nil
	}

	d, err := Finalize(spec, defaults)
	if err != nil {
		return nil, nil, err
	}

	return d, nil, nil
}

// ParseEntry resolves the string/object variant into a spec holding only the values
// the entry sets explicitly, plus the name derived from the repository.
func ParseEntry(entry entity.RawEntry) (*entity.GibletSpec, error) {
	if entry.Err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidEntry, entry.Err)
	}

	if entry.Spec != nil {
		return parseObject(entry.Spec)
	}

	return parseShort(entry.Short)
}

// parseShort parses "[&]owner/repo[/subPath]@version". Anything after a second "@"
// is ignored.
func parseShort(s string) (*entity.GibletSpec, error) {
	ref, version, _ := strings.Cut(strings.TrimSpace(s), versionMarker)
	version, _, _ = strings.Cut(version, versionMarker)

	spec := &entity.GibletSpec{Version: version}
	if rest, ok := strings.CutPrefix(ref, noAdaptMarker); ok {
		adapt := false
		spec.Adapt = &adapt
		ref = rest
	}

	owner, repo, subPath, err := splitRepo(ref)
	if err != nil {
		return nil, err
	}

	spec.Repo = owner + repoSeparator + repo
	spec.Name = repo
	if subPath != "" {
		spec.Path = &subPath
	}

	return spec, nil
}

func parseObject(obj *entity.GibletSpec) (*entity.GibletSpec, error) {
	spec := *obj

	owner, repo, subPath, err := splitRepo(obj.Repo)
	if err != nil {
		return nil, err
	}

	spec.Repo = owner + repoSeparator + repo
	if spec.Name == "" {
		spec.Name = repo
	}

	if spec.Path == nil && subPath != "" {
		spec.Path = &subPath
	}

	return &spec, nil
}

// Merge fills the attributes local leaves unset with the values of remote.
// Anything set locally, the version in particular, wins.
func Merge(local, remote *entity.GibletSpec) *entity.GibletSpec {
	merged := *local
	if remote == nil {
		return &merged
	}

	if merged.Name == "" {
		merged.Name = remote.Name
	}

	if merged.Repo == "" {
		merged.Repo = remote.Repo
	}

	if merged.Path == nil {
		merged.Path = remote.Path
	}

	if merged.Version == "" {
		merged.Version = remote.Version
	}

	if merged.Type == "" {
		merged.Type = remote.Type
	}

	if merged.Adapt == nil {
		merged.Adapt = remote.Adapt
	}

	if merged.Scripts == nil {
		merged.Scripts = remote.Scripts
	}

	if merged.Styles == nil {
		merged.Styles = remote.Styles
	}

	if merged.Files == nil {
		merged.Files = remote.Files
	}

	if merged.Fonts == nil {
		merged.Fonts = remote.Fonts
	}

	return &merged
}

// Finalize applies run defaults to a spec and validates the result.
func Finalize(spec *entity.GibletSpec, defaults RunDefaults) (*entity.Descriptor, error) {
	owner, repo, subPath, err := splitRepo(spec.Repo)
	if err != nil {
		return nil, err
	}

	if spec.Path != nil {
		if subPath, err = normalizeSubPath(*spec.Path); err != nil {
			return nil, err
		}
	}

	format := spec.Type
	if format == "none" {
		format = entity.FormatNone
	}

	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s for %s", common.ErrUnknownFormat, spec.Type, spec.Repo)
	}

	adapt := defaults.Adapt
	if spec.Adapt != nil {
		adapt = *spec.Adapt
	}

	d := &entity.Descriptor{
		Name:       spec.Name,
		Owner:      owner,
		Repo:       repo,
		Version:    spec.Version,
		SubPath:    subPath,
		Kind:       entity.KindHub,
		Format:     format,
		Adapt:      adapt,
		OutputBase: defaults.OutputBase,
	}

	if d.Name == "" {
		d.Name = repo
	}

	if d.Version == "" {
		d.Version = entity.DefaultVersion
	}

	if err := validateName(d.Name); err != nil {
		return nil, err
	}

	// The version is both a URL segment and a cache directory, so it must already be clean.
	if cleaned, err := util.CleanRelative(d.Version); err != nil {
		return nil, fmt.Errorf("%w: version: %w", common.ErrInvalidEntry, err)
	} else if cleaned != d.Version {
		return nil, fmt.Errorf("%w: version %q is not a clean path", common.ErrInvalidEntry, d.Version)
	}

	lists := []*[]entity.FileRef{&d.Scripts, &d.Styles, &d.Files, &d.Fonts}
	for i, refs := range [][]entity.FileRef{spec.Scripts, spec.Styles, spec.Files, spec.Fonts} {
		cleaned, err := cleanRefs(refs)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidEntry, d.Name, err)
		}
		*lists[i] = cleaned
	}

	return d, nil
}

// ValidateComponentVersion accepts only plain tokens: letters, digits, '.', '_' and '-'.
func ValidateComponentVersion(repo, version string) error {
	if !componentVersionRegexp.MatchString(version) {
		return fmt.Errorf("%w: %q for component %s", common.ErrInvalidVersion, version, repo)
	}

	return nil
}

// NewComponentDescriptor builds the descriptor of an "owner/repo": "version" component pair.
func NewComponentDescriptor(fullRepo string, version entity.ComponentVersion, defaults RunDefaults) (*entity.Descriptor, error) {
	if version.Err != nil {
		return nil, fmt.Errorf("%w: component %s: %w", common.ErrInvalidVersion, fullRepo, version.Err)
	}

	if err := ValidateComponentVersion(fullRepo, version.Version); err != nil {
		return nil, err
	}

	parts := strings.Split(fullRepo, repoSeparator)
	if len(parts) != componentParts {
		return nil, fmt.Errorf("%w: component must be owner/repo: %s", common.ErrInvalidEntry, fullRepo)
	}

	owner, repo, _, err := splitRepo(fullRepo)
	if err != nil {
		return nil, err
	}

	return &entity.Descriptor{
		Name:       repo,
		Owner:      owner,
		Repo:       repo,
		Version:    version.Version,
		Kind:       entity.KindComponent,
		Format:     entity.FormatCJS,
		Adapt:      true,
		OutputBase: defaults.OutputBase,
	}, nil
}

// MergeComponent applies a remote component.json: files, fonts and images become one
// file list and the script named by main is materialized as index.js.
func MergeComponent(d *entity.Descriptor, cf *entity.ComponentFile) (*entity.Descriptor, error) {
	merged := *d
	if cf.Name != "" {
		merged.Name = cf.Name
	}

	if err := validateName(merged.Name); err != nil {
		return nil, err
	}

	files := make([]entity.FileRef, 0, len(cf.Files)+len(cf.Fonts)+len(cf.Images))
	files = append(files, cf.Files...)
	files = append(files, cf.Fonts...)
	files = append(files, cf.Images...)

	var err error
	if merged.Scripts, err = cleanRefs(cf.Scripts); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidEntry, merged.Name, err)
	}

	if merged.Styles, err = cleanRefs(cf.Styles); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidEntry, merged.Name, err)
	}

	if merged.Files, err = cleanRefs(files); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrInvalidEntry, merged.Name, err)
	}
	merged.Fonts = nil

	if cf.Main != "" {
		main := path.Clean(cf.Main)
		for i, ref := range merged.Scripts {
			if ref.Target == "" && ref.Source == main {
				merged.Scripts[i].Target = entity.ComponentMainName
			}
		}
	}

	return &merged, nil
}

func splitRepo(ref string) (owner, repo, subPath string, err error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(ref), repoSeparator), repoSeparator)
	if len(parts) < componentParts || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("%w: repository must be owner/repo: %q", common.ErrInvalidEntry, ref)
	}

	if len(parts) > componentParts {
		subPath, err = normalizeSubPath(strings.Join(parts[componentParts:], repoSeparator))
		if err != nil {
			return "", "", "", err
		}
	}

	return parts[0], parts[1], subPath, nil
}

// normalizeSubPath returns "" or a clean relative path ending with "/".
func normalizeSubPath(p string) (string, error) {
	p = strings.Trim(p, repoSeparator)
	if p == "" {
		return "", nil
	}

	cleaned, err := util.CleanRelative(p)
	if err != nil {
		return "", fmt.Errorf("%w: sub path: %w", common.ErrInvalidEntry, err)
	}

	return cleaned + repoSeparator, nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid package name %q", common.ErrInvalidEntry, name)
	}

	return nil
}

func cleanRefs(refs []entity.FileRef) ([]entity.FileRef, error) {
	if refs == nil {
		return nil, nil
	}

	cleaned := make([]entity.FileRef, 0, len(refs))
	for _, ref := range refs {
		source, err := util.CleanRelative(ref.Source)
		if err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}

		var target string
		if ref.Target != "" {
			if target, err = util.CleanRelative(ref.Target); err != nil {
				return nil, fmt.Errorf("target: %w", err)
			}
		}

		cleaned = append(cleaned, entity.FileRef{Source: source, Target: target})
	}

	return cleaned, nil
}
