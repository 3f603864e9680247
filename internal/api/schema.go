package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"shadowrealms/internal/ledger"
)

const maxBodyBytes = 64 * 1024

//go:embed schemas/*.json
var schemaFS embed.FS

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", e.Name(), err)
		}
		names = append(names, e.Name())
	}
	out := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := c.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		out[strings.TrimSuffix(name, ".json")] = s
	}
	return out, nil
}

// decodeBody validates the request body against the named schema, then
// decodes it strictly into out.
func (s *Server) decodeBody(r *http.Request, schema string, out any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return ledger.Errorf(ledger.CodeInvalidArgument, "", "read body: %v", err)
	}
	if len(raw) > maxBodyBytes {
		return ledger.Errorf(ledger.CodeInvalidArgument, "", "request body too large")
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return ledger.Errorf(ledger.CodeInvalidArgument, "", "invalid json: %v", err)
	}
	sch, ok := s.schemas[schema]
	if !ok {
		return fmt.Errorf("no schema named %q", schema)
	}
	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return ledger.Errorf(ledger.CodeInvalidArgument, "", "%s", schemaMessage(verr))
		}
		return ledger.Errorf(ledger.CodeInvalidArgument, "", "%v", err)
	}

	if err := decodeJSON(bytes.NewReader(raw), out); err != nil {
		return ledger.Errorf(ledger.CodeInvalidArgument, "", "invalid body: %v", err)
	}
	return nil
}

// schemaMessage reports the deepest failing location of a validation error.
func schemaMessage(verr *jsonschema.ValidationError) string {
	leaf := verr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "body"
	}
	return fmt.Sprintf("%s: %s", loc, leaf.Message)
}
