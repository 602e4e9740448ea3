// Package errors provides coded, actionable errors for the cinder command.
//
// Each error carries a code (e.g. "E101") registered with a category, a
// short message and a longer explanation. Callers add a detail line, a
// suggestion and the underlying cause:
//
//	return errors.New("E101").
//	    WithDetail("cinder.yaml: line 3: mapping values are not allowed").
//	    WithSuggestion("Check that the file is valid YAML").
//	    Wrap(err)
//
// Format renders the error for a terminal:
//
//	ERROR E101: Config file is malformed
//
//	  cinder.yaml: line 3: mapping values are not allowed
//
//	  Hint: Check that the file is valid YAML
//
// The library packages under pkg/ do not use this package; they return
// plain sentinel and typed errors.
package errors
