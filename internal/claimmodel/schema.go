package claimmodel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/mercury-network/mercury-go/internal/mercuryerr"
	"github.com/sirupsen/logrus"
)

// SchemaVersion is a versioned JSON descriptor of a claim's shape, loaded
// from a `<author>_<name>_<version>.schema.json` file (§6).
type SchemaVersion struct {
	Id       SchemaId
	Author   string
	Name     string
	Version  uint32
	Content  json.RawMessage
	Ordering []string
}

type schemaFile struct {
	Author   string          `json:"author"`
	Name     string          `json:"name"`
	Version  uint32          `json:"version"`
	Content  json.RawMessage `json:"content"`
	Ordering []string        `json:"ordering,omitempty"`
}

type schemaKey struct {
	author  string
	name    string
	version uint32
}

// SchemaRegistry holds the schemas loaded from a directory. It is safe for
// concurrent reads; it is built once via LoadSchemaRegistry and not mutated
// afterward.
type SchemaRegistry struct {
	mu      sync.RWMutex
	byKey   map[schemaKey]SchemaVersion
	byIdStr map[string]SchemaVersion
}

// LoadSchemaRegistry walks dir for "*.schema.json" files. A malformed or
// unreadable file is logged via log and skipped rather than failing the
// whole load, matching the spec's "unknown or malformed files are logged
// and skipped".
func LoadSchemaRegistry(dir string, log *logrus.Entry) (*SchemaRegistry, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	reg := &SchemaRegistry{
		byKey:   make(map[schemaKey]SchemaVersion),
		byIdStr: make(map[string]SchemaVersion),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("claimmodel: read schema dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".schema.json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided schema directory
		if err != nil {
			log.WithField("file", path).WithError(err).Warn("claimmodel: skipping unreadable schema file")
			continue
		}
		var sf schemaFile
		if err := json.Unmarshal(raw, &sf); err != nil {
			log.WithField("file", path).WithError(err).Warn("claimmodel: skipping malformed schema file")
			continue
		}
		if sf.Author == "" || sf.Name == "" {
			log.WithField("file", path).Warn("claimmodel: skipping schema file missing author/name")
			continue
		}
		id, err := NewSchemaId(sf.Content)
		if err != nil {
			log.WithField("file", path).WithError(err).Warn("claimmodel: skipping schema file with unhashable content")
			continue
		}
		sv := SchemaVersion{
			Id:       id,
			Author:   sf.Author,
			Name:     sf.Name,
			Version:  sf.Version,
			Content:  sf.Content,
			Ordering: sf.Ordering,
		}
		key := schemaKey{author: sf.Author, name: sf.Name, version: sf.Version}
		reg.byKey[key] = sv
		reg.byIdStr[id.String()] = sv
	}
	return reg, nil
}

// expectedFilename is the canonical on-disk name for a SchemaVersion,
// matching §6's "<author>_<name>_<version>.schema.json".
func expectedFilename(author, name string, version uint32) string {
	return author + "_" + name + "_" + strconv.FormatUint(uint64(version), 10) + ".schema.json"
}

// Lookup resolves a schema by author/name/version.
func (r *SchemaRegistry) Lookup(author, name string, version uint32) (SchemaVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sv, ok := r.byKey[schemaKey{author: author, name: name, version: version}]
	return sv, ok
}

// ById resolves a schema by its content-hash SchemaId.
func (r *SchemaRegistry) ById(id SchemaId) (SchemaVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sv, ok := r.byIdStr[id.String()]
	return sv, ok
}

// Validate checks that claim's schema is known, and — when the schema
// declares an Ordering — that the claim's top-level content keys are a
// subset of it. Ordering is a display hint, not a closed-world schema: keys
// outside it are tolerated for forward compatibility (an Open Question
// resolved this way, see DESIGN.md).
func (r *SchemaRegistry) Validate(c Claim) error {
	sv, ok := r.ById(c.Schema)
	if !ok {
		return mercuryerr.ErrUnknownSchema
	}
	if len(sv.Ordering) == 0 {
		return nil
	}
	var content map[string]json.RawMessage
	if err := json.Unmarshal(c.Content, &content); err != nil {
		// Non-object content can't be checked against a key ordering; that's
		// fine, ordering only constrains object-shaped claims.
		return nil
	}
	allowed := make(map[string]struct{}, len(sv.Ordering))
	for _, k := range sv.Ordering {
		allowed[k] = struct{}{}
	}
	for k := range content {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("claimmodel: %w: content key %q not in schema ordering", mercuryerr.ErrMalformed, k)
		}
	}
	return nil
}
