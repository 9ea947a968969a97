package entity

import "strings"

type Kind string

const (
	KindHub       Kind = "hub"
	KindComponent Kind = "component"
)

// ModuleFormat is the wrapping convention of a package's scripts.
type ModuleFormat string

const (
	FormatNone ModuleFormat = ""
	FormatCJS  ModuleFormat = "cjs"
	FormatUMD  ModuleFormat = "umd"
)

func (f ModuleFormat) Valid() bool {
	switch f {
	case FormatNone, FormatCJS, FormatUMD, "none":
		return true
	}

	return false
}

type Category string

const (
	CategoryScripts Category = "scripts"
	CategoryStyles  Category = "styles"
	CategoryFiles   Category = "files"
	CategoryFonts   Category = "fonts"
)

// Descriptor is the fully resolved identity of one dependency.
type Descriptor struct {
	Name       string       // Unique key within the output tree
	Owner      string       // Repository owner
	Repo       string       // Repository name
	Version    string       // Exact tag, branch or commit
	SubPath    string       // Prefix inside the repository, empty or ending with "/"
	Kind       Kind         // hub or component
	Format     ModuleFormat // Governs script adaptation
	Adapt      bool         // Whether scripts are adapted
	Scripts    []FileRef
	Styles     []FileRef
	Files      []FileRef
	Fonts      []FileRef
	OutputBase string // Root of the output tree for this run
}

// FullRepo returns "owner/repo".
func (d *Descriptor) FullRepo() string {
	return d.Owner + "/" + d.Repo
}

// RemotePath returns the repository path of a source file, "owner/repo/version/subPath+source".
func (d *Descriptor) RemotePath(source string) string {
	return strings.Join([]string{d.Owner, d.Repo, d.Version, d.SubPath + source}, "/")
}

// FileSet is one category of file references.
type FileSet struct {
	Category Category
	Refs     []FileRef
}

// FileSets returns the file lists in processing order: scripts, styles, files, fonts.
func (d *Descriptor) FileSets() []FileSet {
	return []FileSet{
		{Category: CategoryScripts, Refs: d.Scripts},
		{Category: CategoryStyles, Refs: d.Styles},
		{Category: CategoryFiles, Refs: d.Files},
		{Category: CategoryFonts, Refs: d.Fonts},
	}
}

// FileCount returns the number of file references across every category.
func (d *Descriptor) FileCount() int {
	return len(d.Scripts) + len(d.Styles) + len(d.Files) + len(d.Fonts)
}
