package userscript

import (
	"github.com/yucer/userscript-proxy/metadata"
)

// Directive names recognized by the built-in schema.
const (
	tagName        = "name"
	tagVersion     = "version"
	tagRunAt       = "run-at"
	tagMatch       = "match"
	tagInclude     = "include"
	tagExclude     = "exclude"
	tagNoframes    = "noframes"
	tagDownloadURL = "downloadURL"
	tagUpdateURL   = "updateURL"
)

func strPtr(s string) *string { return &s }

func isRunAtValue(v string) bool {
	_, ok := parseRunAt(v)
	return ok
}

var builtinSchema = metadata.Schema{
	{Name: tagName, Kind: metadata.String, Unique: true, Required: true},
	{Name: tagVersion, Kind: metadata.String, Unique: true},
	{Name: tagRunAt, Kind: metadata.String, Unique: true, Default: strPtr(DocumentEnd), Predicate: isRunAtValue},
	{Name: tagMatch, Kind: metadata.String},
	{Name: tagInclude, Kind: metadata.String},
	{Name: tagExclude, Kind: metadata.String},
	{Name: tagNoframes, Kind: metadata.Boolean, Unique: true},
	{Name: tagDownloadURL, Kind: metadata.String, Unique: true},
	{Name: tagUpdateURL, Kind: metadata.String, Unique: true},
}

// Create builds a Userscript from raw script source by extracting, parsing
// and validating its metadata block against the built-in schema. Metadata
// errors propagate unwrapped, so callers can inspect the exact kind.
func Create(content string) (*Userscript, error) {
	block, err := metadata.Extract(content)
	if err != nil {
		return nil, err
	}
	md, err := metadata.Validate(builtinSchema, metadata.Parse(block))
	if err != nil {
		return nil, err
	}

	s := &Userscript{
		content: content,
	}
	if it, ok := md.First(tagName); ok {
		s.name = it.Value
	}
	if it, ok := md.First(tagVersion); ok {
		s.version = it.Value
	}
	if it, ok := md.First(tagRunAt); ok {
		// The schema predicate has already rejected unknown values.
		s.runAt, _ = parseRunAt(it.Value)
	}
	for _, it := range md.All(tagMatch) {
		s.matchPatterns = append(s.matchPatterns, it.Value)
	}
	for _, it := range md.All(tagInclude) {
		s.includePatterns = append(s.includePatterns, it.Value)
	}
	for _, it := range md.All(tagExclude) {
		s.excludePatterns = append(s.excludePatterns, it.Value)
	}
	if it, ok := md.First(tagNoframes); ok {
		s.noframes = it.Bool
	}
	if it, ok := md.First(tagDownloadURL); ok {
		s.downloadURL = it.Value
	}

	return s, nil
}
