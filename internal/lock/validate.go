package lock

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

// Validate checks a JSON-encoded lock configuration against the lock schema.
// Returns an error describing the first violation, if any.
func Validate(data []byte) error {
	// A fresh context per call: cue.Context is not safe for concurrent use.
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile lock schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Lock"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("lookup lock schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename("lock.json"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("parse lock config: %w", err)
	}

	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid lock config: %w", err)
	}
	return nil
}
