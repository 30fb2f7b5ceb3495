package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/txsched/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Declaration errors (E101-E109)
	ErrDesignNoTransactions = "E101" // at least one transaction required
	ErrInvalidName          = "E102" // name is empty or malformed
	ErrDuplicateField       = "E103" // duplicate field in a layout
	ErrInvalidFieldType     = "E104" // invalid type string
	ErrDuplicateName        = "E105" // name declared twice
	ErrFloatTypeForbidden   = "E106" // float types not allowed

	// Reference errors (E110-E119)
	ErrUnknownCall          = "E110" // call names an undeclared method
	ErrCallsTransaction     = "E111" // call names a transaction
	ErrInvalidRelationKind  = "E112" // relation kind is not exclusive or priority
	ErrUnknownRelationName  = "E113" // relation side is undeclared
	ErrSelfRelation         = "E114" // relation between a name and itself
	ErrCallCycle            = "E115" // methods call each other in a cycle
	ErrDeclaredPriorityLoop = "E116" // priority relations form a cycle
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// namePattern matches method and transaction names.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Validate checks a compiled design against schema rules.
// Returns all errors found (does not fail-fast), in declaration order.
// The graph builder rejects the same designs, but stops at the first problem.
func Validate(d *ir.Design) []ValidationError {
	var errs []ValidationError

	if len(d.Transactions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "transactions",
			Message: "at least one transaction is required",
			Code:    ErrDesignNoTransactions,
		})
	}

	kinds := make(map[string]string) // name -> "method" | "transaction"
	declare := func(field, name, kind string) {
		if !namePattern.MatchString(name) {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid %s name %q", kind, name),
				Code:    ErrInvalidName,
			})
		}
		if prev, ok := kinds[name]; ok {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate name %q (already declared as %s)", name, prev),
				Code:    ErrDuplicateName,
			})
			return
		}
		kinds[name] = kind
	}

	for i, m := range d.Methods {
		declare(fmt.Sprintf("methods[%d].name", i), m.Name, "method")
		errs = append(errs, validateLayout(m.Input, fmt.Sprintf("methods[%d].input", i))...)
		errs = append(errs, validateLayout(m.Output, fmt.Sprintf("methods[%d].output", i))...)
	}
	for i, t := range d.Transactions {
		declare(fmt.Sprintf("transactions[%d].name", i), t.Name, "transaction")
	}

	checkCalls := func(field string, calls []string) {
		for j, name := range calls {
			switch kinds[name] {
			case "method":
			case "transaction":
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", field, j),
					Message: fmt.Sprintf("%q is a transaction; only methods can be called", name),
					Code:    ErrCallsTransaction,
				})
			default:
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s[%d]", field, j),
					Message: fmt.Sprintf("call to undeclared method %q", name),
					Code:    ErrUnknownCall,
				})
			}
		}
	}
	for i, m := range d.Methods {
		checkCalls(fmt.Sprintf("methods[%d].calls", i), m.Calls)
	}
	for i, t := range d.Transactions {
		checkCalls(fmt.Sprintf("transactions[%d].calls", i), t.Calls)
	}

	for i, rel := range d.Relations {
		field := fmt.Sprintf("relations[%d]", i)
		if !ir.ValidRelationKinds[rel.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("invalid relation kind %q, must be \"exclusive\" or \"priority\"", rel.Kind),
				Code:    ErrInvalidRelationKind,
			})
		}
		for _, side := range []struct{ key, name string }{{"a", rel.A}, {"b", rel.B}} {
			if _, ok := kinds[side.name]; !ok {
				errs = append(errs, ValidationError{
					Field:   field + "." + side.key,
					Message: fmt.Sprintf("relation names undeclared %q", side.name),
					Code:    ErrUnknownRelationName,
				})
			}
		}
		if rel.A == rel.B {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("%s relation between %q and itself", rel.Kind, rel.A),
				Code:    ErrSelfRelation,
			})
		}
	}

	for _, w := range AnalyzeCycles(d) {
		code := ErrCallCycle
		if w.Kind == CycleKindPriority {
			code = ErrDeclaredPriorityLoop
		}
		errs = append(errs, ValidationError{
			Field:   string(w.Kind),
			Message: w.Message,
			Code:    code,
		})
	}

	return errs
}

// validateLayout checks field names and types of one method layout.
func validateLayout(fields []ir.Field, path string) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for j, f := range fields {
		fieldPath := fmt.Sprintf("%s[%d]", path, j)
		if f.Name == "" {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: "layout field must be named",
				Code:    ErrInvalidName,
			})
		} else if seen[f.Name] {
			errs = append(errs, ValidationError{
				Field:   fieldPath,
				Message: fmt.Sprintf("duplicate layout field %q", f.Name),
				Code:    ErrDuplicateField,
			})
		}
		seen[f.Name] = true
		errs = append(errs, validateFieldType(f.Type, fieldPath+".type", f.Name)...)
	}
	return errs
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	// E106: float gets its own code so the message can suggest int
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !ir.FieldTypes[fieldType] {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}

	return nil
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
