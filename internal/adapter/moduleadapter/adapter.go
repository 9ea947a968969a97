// Package moduleadapter rewrites CommonJS and UMD wrapped scripts into a module with a
// default export. It is a textual shim, not a parser: only the single binding form
// `var name = require('lib');` is converted. const/let bindings, destructuring,
// multi-declarator statements and inline require calls are left untouched and hit the
// throwing require stub at runtime.
package moduleadapter

import (
	"fmt"
	"regexp"

	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
)

const (
	scaffoldPrefix = "var module = { exports: {} }, exports = module.exports;\n" +
		"function require() { throw new Error('Not implemented.'); }\n"
	scaffoldSuffix = "\nexport default module.exports;"
)

var (
	requireRegexp = regexp.MustCompile(`var\s+([a-zA-Z$_][a-zA-Z$_0-9]*)\s+=\s+require\s*\((["'][^"']+["'])\)\s*;?`)
	importReplace = []byte("import $1 from $2;")
)

// Adapt rewrites data according to format. FormatNone returns data unchanged.
func Adapt(format entity.ModuleFormat, data []byte) ([]byte, error) {
	switch format {
	case entity.FormatNone, "none":
		return data, nil
	case entity.FormatCJS:
		return wrap(RequireToImports(data)), nil
	case entity.FormatUMD:
		return wrap(data), nil
	}

	return nil, fmt.Errorf("%w: %s", common.ErrUnknownFormat, format)
}

// RequireToImports replaces `var a = require('x');` bindings with `import a from 'x';`.
func RequireToImports(data []byte) []byte {
	return requireRegexp.ReplaceAll(data, importReplace)
}

func wrap(data []byte) []byte {
	out := make([]byte, 0, len(scaffoldPrefix)+len(data)+len(scaffoldSuffix))
	out = append(out, scaffoldPrefix...)
	out = append(out, data...)
	out = append(out, scaffoldSuffix...)

	return out
}
