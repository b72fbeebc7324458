package ruleset

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ruleDecl is one declared rule block as it appears in a TOML policy file,
// before validation and expansion. Fields that accept more than one TOML type
// (string or array of strings) are decoded as any and checked by hand.
type ruleDecl struct {
	ToolName         any             `toml:"toolName"`
	ServerName       string          `toml:"serverName"`
	MCPName          string          `toml:"mcpName"`
	CommandPrefix    any             `toml:"commandPrefix"`
	CommandRegex     string          `toml:"commandRegex"`
	ArgsPattern      string          `toml:"argsPattern"`
	Decision         string          `toml:"decision" validate:"required,oneof=allow deny ask_user"`
	Priority         *float64        `toml:"priority" validate:"required,min=0,max=999"`
	Modes            []string        `toml:"modes"`
	ToolAnnotations  map[string]bool `toml:"toolAnnotations"`
	DenyMessage      string          `toml:"denyMessage"`
	AllowRedirection bool            `toml:"allowRedirection"`
}

// checkerDecl is one declared safety-checker block. The checker descriptor is
// opaque to the loader beyond requiring "type" and "name".
type checkerDecl struct {
	ToolName   any            `toml:"toolName"`
	ServerName string         `toml:"serverName"`
	MCPName    string         `toml:"mcpName"`
	Priority   *float64       `toml:"priority" validate:"required,min=0,max=999"`
	Checker    map[string]any `toml:"checker" validate:"required"`
}

// server returns the declared server name, preferring the mcpName spelling.
func (d ruleDecl) server() string {
	if d.MCPName != "" {
		return d.MCPName
	}
	return d.ServerName
}

func (d checkerDecl) server() string {
	if d.MCPName != "" {
		return d.MCPName
	}
	return d.ServerName
}

// stringList coerces a TOML value that may be a string or an array of strings.
// A nil value yields an empty list. Returns false for any other shape.
func stringList(v any) ([]string, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case string:
		return []string{x}, true
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// checkIntegerPriority rejects fractional priorities. Range is enforced by
// validator tags; fractional values survive those and are caught here rather
// than silently clamped.
func checkIntegerPriority(p *float64) error {
	if p == nil {
		return nil
	}
	if *p != math.Trunc(*p) {
		return fmt.Errorf("priority must be an integer in [0, %d], got %v", 999, *p)
	}
	return nil
}

// formatValidationError converts validator errors into single-line messages
// suitable for a LoadError.
func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param()))
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must be in [0, %d]", e.Field(), 999))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
