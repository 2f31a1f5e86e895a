package extension

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dshills/kairo/internal/hostfs"
)

//go:embed schema/manifest.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// Manifest is the declarative description of an extension.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`

	// Main is the entry point, relative to the extension folder.
	Main string `json:"main"`

	// Dependencies are recorded but never resolved.
	Dependencies Dependencies `json:"dependencies,omitempty"`
}

// Dependencies lists the ids an extension declares it depends on. The
// manifest may give them as an array of ids or as an object mapping ids
// to version ranges; ranges are dropped.
type Dependencies []string

func (d *Dependencies) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err == nil {
		*d = ids
		return nil
	}
	var ranges map[string]string
	if err := json.Unmarshal(data, &ranges); err != nil {
		return fmt.Errorf("dependencies: want an array of ids or an object of ranges: %w", err)
	}
	ids = make([]string, 0, len(ranges))
	for id := range ranges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	*d = ids
	return nil
}

// Issue is a single manifest problem.
type Issue struct {
	Path    string // JSON pointer into the manifest, empty for the root
	Message string
}

func (i Issue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// getSchema compiles the embedded manifest schema once.
func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("manifest.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("manifest.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// LoadManifest reads and parses the manifest of folder.
func LoadManifest(fsys hostfs.FS, folder string) (*Manifest, error) {
	data, err := fsys.ReadExtensionManifest(folder)
	if err != nil {
		return nil, &ManifestError{Path: folder, Err: err}
	}
	return ParseManifest(folder, data)
}

// ParseManifest validates data against the manifest schema and decodes it.
// Unknown keys are ignored. folder is only used for error reporting.
func ParseManifest(folder string, data []byte) (*Manifest, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("loading manifest schema: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, &ManifestError{Path: folder, Err: fmt.Errorf("%w: %w", ErrManifestSyntax, err)}
	}
	if err := schema.Validate(inst); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return nil, &ManifestError{Path: folder, Err: err}
		}
		return nil, &ManifestError{Path: folder, Issues: extractIssues(ve), Err: ErrManifestInvalid}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: folder, Err: fmt.Errorf("%w: %w", ErrManifestSyntax, err)}
	}
	if issues := m.check(); len(issues) > 0 {
		return nil, &ManifestError{Path: folder, ID: m.ID, Issues: issues, Err: ErrManifestInvalid}
	}
	return &m, nil
}

// check applies the rules the schema cannot express.
func (m *Manifest) check() []Issue {
	main := filepath.ToSlash(m.Main)
	if path.IsAbs(main) || filepath.IsAbs(m.Main) || filepath.VolumeName(m.Main) != "" {
		return []Issue{{Path: "/main", Message: "must be a relative path"}}
	}
	if clean := path.Clean(main); clean == ".." || strings.HasPrefix(clean, "../") {
		return []Issue{{Path: "/main", Message: "must stay inside the extension folder"}}
	}
	return nil
}

// EntryPoint returns the absolute path of the main file under folder.
func (m *Manifest) EntryPoint(folder string) string {
	return filepath.Join(folder, filepath.FromSlash(m.Main))
}

// extractIssues flattens the leaves of a schema validation error.
func extractIssues(ve *jsonschema.ValidationError) []Issue {
	var issues []Issue
	collectIssues(ve, &issues)
	if len(issues) == 0 {
		return []Issue{{Message: ve.Error()}}
	}
	return issues
}

func collectIssues(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) == 0 {
		p := ""
		if len(ve.InstanceLocation) > 0 {
			p = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		msg := ve.Error()
		if ve.ErrorKind != nil {
			msg = ve.ErrorKind.LocalizedString(printer)
		}
		*issues = append(*issues, Issue{Path: p, Message: msg})
		return
	}
	for _, cause := range ve.Causes {
		collectIssues(cause, issues)
	}
}
