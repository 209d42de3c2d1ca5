package metadata

// Validate checks metadata against a schema and returns the normalized
// result. The pipeline order is fixed: required check, de-duplication,
// defaulting, then per-item coercion and predicate checks.
//
// Items whose name matches no schema tag pass through unchanged.
func Validate(schema Schema, md Metadata) (Metadata, error) {
	if err := checkRequired(schema, md); err != nil {
		return nil, err
	}
	md = withoutDuplicates(schema, md)
	md = withDefaults(schema, md)

	out := make(Metadata, 0, len(md))
	for _, it := range md {
		validated, err := validateItem(schema, it)
		if err != nil {
			return nil, err
		}
		out = append(out, validated)
	}
	return out, nil
}

func checkRequired(schema Schema, md Metadata) error {
	for _, spec := range schema {
		if spec.Required && !md.Has(spec.Name) {
			return MissingRequiredTagError{Tag: spec.Name}
		}
	}
	return nil
}

// withoutDuplicates drops every occurrence of a unique tag after the first,
// preserving the relative order of surviving items. Non-unique and
// unrecognized tags are never dropped.
func withoutDuplicates(schema Schema, md Metadata) Metadata {
	out := make(Metadata, 0, len(md))
	for _, it := range md {
		spec := schema.spec(it.Name)
		if spec != nil && spec.Unique && out.Has(it.Name) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// withDefaults appends (name, default) for every schema tag that is absent
// from the metadata and declares a default.
func withDefaults(schema Schema, md Metadata) Metadata {
	for _, spec := range schema {
		if spec.Default != nil && !md.Has(spec.Name) {
			md = append(md, Item{Name: spec.Name, Value: *spec.Default})
		}
	}
	return md
}

func validateItem(schema Schema, it Item) (Item, error) {
	spec := schema.spec(it.Name)
	if spec == nil {
		return it, nil
	}
	switch spec.Kind {
	case Boolean:
		// A boolean directive is true no matter what trails it, so a line
		// like "@noframes blabla" still reads as true.
		it = Item{Name: it.Name, Bool: true}
	case String:
		if it.Bool {
			return Item{}, MissingValueError{Tag: it.Name}
		}
	}
	if spec.Predicate != nil && !spec.Predicate(it.Value) {
		return Item{}, PredicateFailedError{Tag: it.Name, Value: it.Value}
	}
	return it, nil
}
