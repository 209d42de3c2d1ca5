package metadata

// ValueKind discriminates the two directive shapes. Validation dispatches on
// the declared kind of a tag, never on the observed shape of its value.
type ValueKind int

const (
	// String directives carry a textual value.
	String ValueKind = iota
	// Boolean directives are true by mere presence; any trailing text is
	// ignored.
	Boolean
)

// TagSpec declares one recognized metadata directive.
type TagSpec struct {
	Name   string
	Kind   ValueKind
	Unique bool
	// Required rejects metadata in which the tag never appears.
	Required bool
	// Default, when non-nil, is appended as the tag's value if the tag is
	// absent from the metadata.
	Default *string
	// Predicate, when non-nil, must accept the directive's value.
	Predicate func(string) bool
}

// Schema is an ordered set of tag specs, unique by name.
type Schema []TagSpec

func (s Schema) spec(name string) *TagSpec {
	for i := range s {
		if s[i].Name == name {
			return &s[i]
		}
	}
	return nil
}
