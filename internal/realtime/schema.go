package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidPayload marks an inbound record that cannot be merged.
var ErrInvalidPayload = errors.New("invalid realtime payload")

const schemaBase = "https://shelf.local/schemas/"

// Record shapes accepted on the wire. Unknown properties are allowed and
// ignored; known properties with the wrong shape are dropped one by one.
var schemaDocs = map[string]string{
	"bookmark.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id"],
		"properties": {
			"id":              {"type": "string", "minLength": 1},
			"clientRef":       {"type": "string"},
			"url":             {"type": "string", "pattern": "\\S"},
			"normalizedUrl":   {"type": "string"},
			"title":           {"type": ["string", "null"]},
			"description":     {"type": ["string", "null"]},
			"faviconUrl":      {"type": ["string", "null"]},
			"ogImageUrl":      {"type": ["string", "null"]},
			"previewImageUrl": {"type": ["string", "null"]},
			"groupId":         {"type": ["string", "null"]},
			"orderIndex":      {"type": ["integer", "null"]},
			"status":          {"enum": ["pending", "ready", "failed"]},
			"errorReason":     {"type": ["string", "null"]},
			"createdAt":       {"type": "string", "format": "date-time"}
		}
	}`,
	"bookmark-insert.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"$ref": "bookmark.json",
		"required": ["id", "url"]
	}`,
	"group.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id"],
		"properties": {
			"id":         {"type": "string", "minLength": 1},
			"name":       {"type": "string", "pattern": "\\S"},
			"icon":       {"type": ["string", "null"]},
			"color":      {"type": ["string", "null"]},
			"orderIndex": {"type": ["integer", "null"]}
		}
	}`,
	"group-insert.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"$ref": "group.json",
		"required": ["id", "name"]
	}`,
	"delete.json": `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id"],
		"properties": {
			"id": {"type": "string", "minLength": 1}
		}
	}`,
}

type schemas struct {
	bookmark       *jsonschema.Schema
	bookmarkInsert *jsonschema.Schema
	group          *jsonschema.Schema
	groupInsert    *jsonschema.Schema
	deletion       *jsonschema.Schema
}

var loadSchemas = sync.OnceValues(func() (*schemas, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	for name, doc := range schemaDocs {
		parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(doc))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", name, err)
		}
		if err := c.AddResource(schemaBase+name, parsed); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	compile := func(name string) (*jsonschema.Schema, error) {
		sch, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		return sch, nil
	}

	var (
		out schemas
		err error
	)
	if out.bookmark, err = compile("bookmark.json"); err != nil {
		return nil, err
	}
	if out.bookmarkInsert, err = compile("bookmark-insert.json"); err != nil {
		return nil, err
	}
	if out.group, err = compile("group.json"); err != nil {
		return nil, err
	}
	if out.groupInsert, err = compile("group-insert.json"); err != nil {
		return nil, err
	}
	if out.deletion, err = compile("delete.json"); err != nil {
		return nil, err
	}
	return &out, nil
})

// sanitize validates raw against sch. Properties that fail validation are
// removed and reported in dropped; a failure at the record level (missing
// id, not an object) rejects the whole payload. The cleaned record is
// returned as JSON together with the set of properties it carries.
func sanitize(sch *jsonschema.Schema, raw []byte) (clean []byte, present map[string]bool, dropped []string, err error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	obj, ok := inst.(map[string]any)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: payload is not an object", ErrInvalidPayload)
	}

	for attempt := 0; attempt < 2; attempt++ {
		verr := sch.Validate(obj)
		if verr == nil {
			break
		}
		var ve *jsonschema.ValidationError
		if !errors.As(verr, &ve) {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, verr)
		}
		bad, fatal := invalidProperties(ve)
		if fatal || len(bad) == 0 || attempt == 1 {
			return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, verr)
		}
		for _, key := range bad {
			delete(obj, key)
			dropped = append(dropped, key)
		}
	}

	present = make(map[string]bool, len(obj))
	for key := range obj {
		present[key] = true
	}
	clean, err = json.Marshal(obj)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return clean, present, dropped, nil
}

// invalidProperties collects the top-level properties the leaf errors of
// ve point at. fatal is set when a leaf concerns the record itself.
func invalidProperties(ve *jsonschema.ValidationError) (keys []string, fatal bool) {
	seen := map[string]bool{}
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		if len(e.InstanceLocation) == 0 {
			fatal = true
			return
		}
		key := e.InstanceLocation[0]
		if key == "id" {
			fatal = true
			return
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	walk(ve)
	return keys, fatal
}
