package manifest

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// schema constrains the shape of classreg.toml. Definitions are closed, so
// unknown keys are rejected.
const schema = `
#Config: {
	runtime?: {
		"enforce-final-super"?: bool
		"reserved-prefixes"?: [...string & != ""]
		"restricted-packages"?: [...string & != ""]
		"preload-limit"?: int & >=1
	}
	log?: {
		verbosity?: int & >=-4 & <=2
		file?:      string
	}
	loader?: [...#Loader]
}

#Loader: {
	name:       string & =~"^[A-Za-z][A-Za-z0-9_.-]*$"
	kind?:      "boot" | "platform" | "app"
	parent?:    string
	classpath?: [...string & =~"^(dir|sqlite|duckdb):.+$"]
	preload?:   [...string]
}
`

// validate checks decoded TOML against the schema.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	s := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := s.Err(); err != nil {
		return fmt.Errorf("compiling manifest schema: %w", err)
	}

	if raw == nil {
		raw = map[string]any{}
	}
	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := s.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %s", errors.Details(err, nil))
	}
	return nil
}
