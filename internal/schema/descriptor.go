// Package schema holds the declarative target schema of the extension and
// the reconciler that converges the live platform schema towards it.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/devix-tecnologia/directus-extension-endereco-br/internal/platform"
)

//go:embed state.json
var stateJSON []byte

//go:embed seed.json
var seedJSON []byte

// Descriptor is the declarative target state: collections, fields and
// relations the extension needs. Immutable after load.
type Descriptor struct {
	Collections []platform.Collection `json:"collections"`
	Fields      []platform.Field      `json:"fields"`
	Relations   []platform.Relation   `json:"relations"`
}

// SeedCountry is one reference country with its nested states, used only
// for initial population.
type SeedCountry struct {
	Nome    string      `json:"nome"`
	Sigla   string      `json:"sigla"`
	Estados []SeedState `json:"estados"`
}

// SeedState is one reference state under a seed country.
type SeedState struct {
	Nome       string `json:"nome"`
	Sigla      string `json:"sigla"`
	CodigoIBGE string `json:"codigo_ibge"`
}

// LoadDescriptor parses and validates the embedded schema descriptor.
func LoadDescriptor() (*Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(stateJSON, &d); err != nil {
		return nil, eris.Wrap(err, "schema: parse state.json")
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadSeed parses the embedded reference seed data.
func LoadSeed() ([]SeedCountry, error) {
	var countries []SeedCountry
	if err := json.Unmarshal(seedJSON, &countries); err != nil {
		return nil, eris.Wrap(err, "schema: parse seed.json")
	}
	return countries, nil
}

// validate enforces descriptor-internal referential integrity. Group
// references are allowed to point outside the descriptor (the parent may
// already exist live); those are resolved at reconcile time instead.
func (d *Descriptor) validate() error {
	declared := make(map[string]bool, len(d.Collections))
	for _, c := range d.Collections {
		if c.Collection == "" {
			return eris.New("schema: collection with empty name")
		}
		if declared[c.Collection] {
			return eris.Errorf("schema: duplicate collection %q", c.Collection)
		}
		declared[c.Collection] = true
	}

	seenFields := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if !declared[f.Collection] {
			return eris.Errorf("schema: field %s.%s references undeclared collection", f.Collection, f.Field)
		}
		key := f.Collection + "." + f.Field
		if seenFields[key] {
			return eris.Errorf("schema: duplicate field %s", key)
		}
		seenFields[key] = true
	}

	for _, r := range d.Relations {
		if !declared[r.Collection] {
			return eris.Errorf("schema: relation %s.%s references undeclared collection", r.Collection, r.Field)
		}
		if !declared[r.RelatedCollection] {
			return eris.Errorf("schema: relation %s.%s references undeclared related collection %q",
				r.Collection, r.Field, r.RelatedCollection)
		}
		if !seenFields[r.Collection+"."+r.Field] {
			return eris.Errorf("schema: relation %s.%s has no matching field", r.Collection, r.Field)
		}
	}
	return nil
}

// FieldsOf returns the declared fields of one collection, in declaration order.
func (d *Descriptor) FieldsOf(collection string) []platform.Field {
	var out []platform.Field
	for _, f := range d.Fields {
		if f.Collection == collection {
			out = append(out, f)
		}
	}
	return out
}

// CollectionNames returns the declared collection names in declaration order.
func (d *Descriptor) CollectionNames() []string {
	names := make([]string, len(d.Collections))
	for i, c := range d.Collections {
		names[i] = c.Collection
	}
	return names
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("descriptor(%d collections, %d fields, %d relations)",
		len(d.Collections), len(d.Fields), len(d.Relations))
}
