package scenario

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// LoadFile compiles one CUE file into a scenario Spec. The scenario may
// sit at the file root or under a top-level "scenario" field.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	return LoadBytes(data, path)
}

// LoadBytes compiles CUE source into a scenario Spec. The filename is used
// for error positions only.
func LoadBytes(src []byte, filename string) (*Spec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if nested := v.LookupPath(cue.ParsePath("scenario")); nested.Exists() {
		v = nested
	}
	return Compile(v)
}
