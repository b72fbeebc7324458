package rule

import "fmt"

// LoadErrorType classifies a recoverable rule-loading failure.
type LoadErrorType string

const (
	// LoadErrTOMLParse marks a file whose TOML document could not be parsed.
	LoadErrTOMLParse LoadErrorType = "toml_parse"
	// LoadErrSchema marks a declaration violating the rule schema.
	LoadErrSchema LoadErrorType = "schema_validation"
	// LoadErrRule marks a declaration failing cross-field validation.
	LoadErrRule LoadErrorType = "rule_validation"
	// LoadErrRegex marks a pattern that failed to compile.
	LoadErrRegex LoadErrorType = "regex_compilation"
	// LoadErrFileRead marks a listed file that could not be read.
	LoadErrFileRead LoadErrorType = "file_read"
)

// LoadError is one recoverable failure accumulated during loading. A single
// malformed rule or file never prevents other valid rules from loading.
type LoadError struct {
	Type    LoadErrorType
	File    string
	Message string
	Details string
}

func (e LoadError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s (%s)", e.File, e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Type, e.Message)
}
