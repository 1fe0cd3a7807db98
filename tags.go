package neosession

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Direction is the orientation of a relationship field relative to the
// struct that declares it.
type Direction int

const (
	// Outgoing fields follow (owner)-[TYPE]->(target). This is the default.
	Outgoing Direction = iota
	// Incoming fields follow (target)-[TYPE]->(owner).
	Incoming
	// Undirected fields accept the relationship in either orientation.
	Undirected
)

func (d Direction) String() string {
	switch d {
	case Incoming:
		return "in"
	case Undirected:
		return "both"
	default:
		return "out"
	}
}

var timeType = reflect.TypeOf(time.Time{})

// propertyMapping binds one struct field to one node property.
type propertyMapping struct {
	Field string
	Prop  string
	Index []int
	Type  reflect.Type
}

// relationshipMapping binds one struct field of type *T or []*T to the
// relationships of a given type.
type relationshipMapping struct {
	Field   string
	RelType string
	Dir     Direction
	Index   []int
	// Many is true for []*T fields.
	Many bool
	// Target is the metadata of T.
	Target *entityMetadata
}

// accepts reports whether a stored relationship of relType, seen from the
// owner side, belongs in this field. outgoing is true when the owner is the
// start node.
func (r *relationshipMapping) accepts(relType string, outgoing bool) bool {
	if r.RelType != relType {
		return false
	}
	switch r.Dir {
	case Undirected:
		return true
	case Incoming:
		return !outgoing
	default:
		return outgoing
	}
}

// entityMetadata holds the parsed `crud` tag information for a specific struct type.
// This metadata is cached by the Registry to avoid costly reflection on every operation.
type entityMetadata struct {
	// Type is the struct type (never a pointer).
	Type reflect.Type
	// Label is the graph node label, defaulting to the struct's name.
	Label string
	// IDField is the name of the string field holding the store-assigned id.
	IDField string
	idIndex []int

	Properties    []propertyMapping
	Relationships []*relationshipMapping
}

func (m *entityMetadata) idOf(ptr reflect.Value) string {
	return ptr.Elem().FieldByIndex(m.idIndex).String()
}

func (m *entityMetadata) setID(ptr reflect.Value, id string) {
	ptr.Elem().FieldByIndex(m.idIndex).SetString(id)
}

// tagOptions is the parsed form of one `crud` tag.
type tagOptions struct {
	id       bool
	property string
	rel      string
	dir      string
	label    string
}

// parseTag splits a tag such as `rel:HAS_ALBUM,dir:in` into its components.
func parseTag(tag string) (tagOptions, error) {
	var opts tagOptions
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "id":
			opts.id = true
		case strings.HasPrefix(part, "property:"):
			opts.property = strings.TrimPrefix(part, "property:")
		case strings.HasPrefix(part, "rel:"):
			opts.rel = strings.TrimPrefix(part, "rel:")
		case strings.HasPrefix(part, "dir:"):
			opts.dir = strings.TrimPrefix(part, "dir:")
		case strings.HasPrefix(part, "label:"):
			opts.label = strings.TrimPrefix(part, "label:")
		default:
			return opts, fmt.Errorf("unknown tag component %q", part)
		}
	}
	return opts, nil
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case "", "out":
		return Outgoing, nil
	case "in":
		return Incoming, nil
	case "both":
		return Undirected, nil
	}
	return Outgoing, fmt.Errorf("unknown direction %q", s)
}

func isScalarType(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Slice:
		return t.Elem() != timeType && isScalarType(t.Elem())
	}
	return false
}

// relationshipTarget returns the struct type behind a *T or []*T field.
func relationshipTarget(t reflect.Type) (reflect.Type, bool, bool) {
	many := false
	if t.Kind() == reflect.Slice {
		many = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, false, false
	}
	return t.Elem(), many, true
}

// Registry maps Go struct types to node labels. Metadata is parsed once per
// type, including every type reachable through relationship fields.
type Registry struct {
	byType sync.Map

	mu      sync.RWMutex
	byLabel map[string]*entityMetadata
}

func newRegistry() *Registry {
	return &Registry{byLabel: make(map[string]*entityMetadata)}
}

// metadataFor returns the metadata of typ, parsing and registering it on
// first use. A failed parse registers nothing.
func (r *Registry) metadataFor(typ reflect.Type) (*entityMetadata, error) {
	// If the type is a pointer, get the underlying element's type.
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}

	// First, attempt to load metadata from the cache for performance.
	if cached, ok := r.byType.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.byType.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}

	pending := make(map[reflect.Type]*entityMetadata)
	meta, err := r.parseTagsFromType(typ, pending)
	if err != nil {
		return nil, err
	}
	if err := r.checkLabels(pending); err != nil {
		return nil, err
	}

	for t, m := range pending {
		r.byType.Store(t, m)
		r.byLabel[m.Label] = m
	}
	return meta, nil
}

// metadataForLabels resolves a stored node's labels to a registered type.
// The first label that names a registered type wins.
func (r *Registry) metadataForLabels(labels []string) (*entityMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range labels {
		if m, ok := r.byLabel[l]; ok {
			return m, true
		}
	}
	return nil, false
}

// Labels returns the labels of every registered type.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, 0, len(r.byLabel))
	for l := range r.byLabel {
		labels = append(labels, l)
	}
	return labels
}

// parseTagsFromType inspects a struct type and extracts persistence metadata
// from its `crud` struct tags:
//
//	ID      string   `crud:"id"`
//	Name    string   `crud:"property:name"`
//	Albums  []*Album `crud:"rel:HAS_ALBUM"`
//	Artist  *Artist  `crud:"rel:HAS_ALBUM,dir:in"`
//	_       struct{} `crud:"label:Band"`
//
// Relationship targets are parsed recursively. pending holds the types parsed
// so far in this pass, which lets cyclic type graphs terminate.
func (r *Registry) parseTagsFromType(typ reflect.Type, pending map[reflect.Type]*entityMetadata) (*entityMetadata, error) {
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: type %s is not a struct", ErrNotMapped, typ)
	}
	if cached, ok := r.byType.Load(typ); ok {
		return cached.(*entityMetadata), nil
	}
	if meta, ok := pending[typ]; ok {
		return meta, nil
	}

	meta := &entityMetadata{Type: typ, Label: typ.Name()}
	pending[typ] = meta

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("crud")

		// Skip fields that are not part of the persistence mapping.
		if tag == "" {
			continue
		}

		opts, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %w", ErrNotMapped, typ.Name(), field.Name, err)
		}

		if field.Name == "_" {
			if opts.label == "" {
				return nil, fmt.Errorf("%w: %s: blank field only accepts a label tag", ErrNotMapped, typ.Name())
			}
			meta.Label = opts.label
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("%w: %s.%s is not exported", ErrNotMapped, typ.Name(), field.Name)
		}

		switch {
		case opts.label != "":
			return nil, fmt.Errorf("%w: %s.%s: label belongs on a blank field", ErrNotMapped, typ.Name(), field.Name)

		case opts.id:
			if opts.property != "" || opts.rel != "" {
				return nil, fmt.Errorf("%w: %s.%s: id field cannot be a property or relationship", ErrNotMapped, typ.Name(), field.Name)
			}
			if field.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("%w: %s.%s: id field must be a string", ErrNotMapped, typ.Name(), field.Name)
			}
			if meta.idIndex != nil {
				return nil, fmt.Errorf("%w: %s declares more than one id field", ErrNotMapped, typ.Name())
			}
			meta.IDField = field.Name
			meta.idIndex = field.Index

		case opts.property != "":
			if opts.rel != "" || opts.dir != "" {
				return nil, fmt.Errorf("%w: %s.%s: a property cannot carry relationship options", ErrNotMapped, typ.Name(), field.Name)
			}
			if !isScalarType(field.Type) {
				return nil, fmt.Errorf("%w: %s.%s: unsupported property type %s", ErrNotMapped, typ.Name(), field.Name, field.Type)
			}
			meta.Properties = append(meta.Properties, propertyMapping{
				Field: field.Name,
				Prop:  opts.property,
				Index: field.Index,
				Type:  field.Type,
			})

		case opts.rel != "":
			dir, err := parseDirection(opts.dir)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrNotMapped, typ.Name(), field.Name, err)
			}
			targetType, many, ok := relationshipTarget(field.Type)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s: relationship field must be *T or []*T", ErrNotMapped, typ.Name(), field.Name)
			}
			target, err := r.parseTagsFromType(targetType, pending)
			if err != nil {
				return nil, err
			}
			meta.Relationships = append(meta.Relationships, &relationshipMapping{
				Field:   field.Name,
				RelType: opts.rel,
				Dir:     dir,
				Index:   field.Index,
				Many:    many,
				Target:  target,
			})

		default:
			return nil, fmt.Errorf("%w: %s.%s is missing 'id', 'property' or 'rel' tag component", ErrNotMapped, typ.Name(), field.Name)
		}
	}

	if meta.Label == "" {
		return nil, fmt.Errorf("%w: anonymous struct %s needs a label", ErrNotMapped, typ)
	}
	if meta.idIndex == nil {
		return nil, fmt.Errorf("%w: no 'id' tag defined for struct %s", ErrNotMapped, typ.Name())
	}

	return meta, nil
}

// checkLabels rejects a parse pass whose labels collide with each other or
// with a label already registered for another type.
func (r *Registry) checkLabels(pending map[reflect.Type]*entityMetadata) error {
	seen := make(map[string]reflect.Type, len(pending))
	for t, m := range pending {
		if other, ok := r.byLabel[m.Label]; ok && other.Type != t {
			return fmt.Errorf("%w: label %q is already mapped to %s", ErrNotMapped, m.Label, other.Type)
		}
		if other, ok := seen[m.Label]; ok {
			return fmt.Errorf("%w: label %q is mapped to both %s and %s", ErrNotMapped, m.Label, other, t)
		}
		seen[m.Label] = t
	}
	return nil
}

// metadataOf is a generic convenience wrapper around metadataFor.
func metadataOf[T any](r *Registry) (*entityMetadata, error) {
	return r.metadataFor(reflect.TypeOf((*T)(nil)).Elem())
}
