// Package policy evaluates compiled WebAssembly policy bundles against
// structured decision requests and returns allow/deny verdicts.
//
// A bundle is an opaque, versioned WASM artifact exporting one function per
// logical entrypoint (export "policy_<name>"), plus the "allocate" and
// "deallocate" memory helpers. Each entrypoint receives one JSON document and
// returns one JSON document of the form {"violations": [...]}; an empty or
// absent violations list means allow.
package policy

// Standard entrypoints the host integrates with. Bundles may export more;
// the loader only validates the set it is asked for.
const (
	EntrypointRegister           = "register"
	EntrypointClientRegister     = "client_register"
	EntrypointAuthorizationGrant = "authorization_grant"
	EntrypointEmailAdd           = "email_add"
)

// StandardEntrypoints returns the entrypoints validated by default at load time.
func StandardEntrypoints() []string {
	return []string{
		EntrypointRegister,
		EntrypointClientRegister,
		EntrypointAuthorizationGrant,
		EntrypointEmailAdd,
	}
}

// Violation is one machine-readable reason a request was denied.
type Violation struct {
	// Code is a stable identifier, e.g. "reserved_username".
	Code string `json:"code"`

	// Message is the human-readable explanation.
	Message string `json:"msg"`

	// Field names the offending input field, when the policy reports one.
	Field string `json:"field,omitempty"`
}

// Decision is the outcome of one evaluation. A decision with no violations is
// an allow; one or more violations is a deny, regardless of any other field.
type Decision struct {
	Violations []Violation `json:"violations"`
}

// Allowed reports whether the decision permits the request.
func (d *Decision) Allowed() bool {
	return len(d.Violations) == 0
}

// Codes returns the violation codes in the order the policy reported them.
func (d *Decision) Codes() []string {
	if len(d.Violations) == 0 {
		return nil
	}
	codes := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		codes[i] = v.Code
	}
	return codes
}
