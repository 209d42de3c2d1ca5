package metadata

import "fmt"

// Error is implemented by every metadata error kind, so callers can
// distinguish a malformed userscript from an unrelated failure with a single
// errors.As check.
type Error interface {
	error
	metadataError()
}

// MissingBlockError reports a userscript without a metadata block.
type MissingBlockError struct{}

func (MissingBlockError) Error() string {
	return fmt.Sprintf(`no metadata block found. The metadata block must follow this format:

    %[1]s %[3]s
    %[1]s %[2]skey1    value1
    %[1]s %[2]skey2    value2
    %[1]s ...
    %[1]s %[2]skeyN    valueN
    %[1]s %[4]s

It must start with %[1]q followed by %[3]q and end with %[1]q followed by %[4]q, and every line must be a line comment starting with a %[2]q-prefixed tag name, then whitespace, then a tag value (with the exception of boolean directives such as %[2]snoframes, which are automatically true if present)`,
		commentPrefix, tagPrefix, blockStart, blockEnd)
}

func (MissingBlockError) metadataError() {}

// InvalidLineError reports a line inside the metadata block that is neither
// whitespace, a plain comment, nor a well-formed tag line. Line holds the
// offending line verbatim.
type InvalidLineError struct {
	Line string
}

func (e InvalidLineError) Error() string {
	return fmt.Sprintf(`invalid metadata block. Only comments are allowed, and each line should follow this format:

    %s %skey    value

This line does not:

    %s`, commentPrefix, tagPrefix, e.Line)
}

func (InvalidLineError) metadataError() {}

// MissingRequiredTagError reports a required directive that did not appear in
// the metadata block.
type MissingRequiredTagError struct {
	Tag string
}

func (e MissingRequiredTagError) Error() string {
	return fmt.Sprintf("the %s%s metadata directive is required, but was not found", tagPrefix, e.Tag)
}

func (MissingRequiredTagError) metadataError() {}

// MissingValueError reports a string-typed directive that appeared without a
// value.
type MissingValueError struct {
	Tag string
}

func (e MissingValueError) Error() string {
	return fmt.Sprintf(`the %[2]s%[3]s metadata directive requires a value, like so:

    %[1]s %[2]s%[3]s    something`, commentPrefix, tagPrefix, e.Tag)
}

func (MissingValueError) metadataError() {}

// PredicateFailedError reports a directive whose value was rejected by its
// tag's predicate.
type PredicateFailedError struct {
	Tag   string
	Value string
}

func (e PredicateFailedError) Error() string {
	return fmt.Sprintf(`detected a %s%s metadata directive with an invalid value, namely:

    %s`, tagPrefix, e.Tag, e.Value)
}

func (PredicateFailedError) metadataError() {}
