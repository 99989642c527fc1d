package errors

// sensitiveKeys never appear in a DomainError's Context when it is projected
// into a JSON-RPC error.data payload. Matching is case-sensitive and exact,
// mirroring the narrow, explicit checks the rest of this package favors over
// pattern matching.
var sensitiveKeys = map[string]bool{
	"token":         true,
	"access_token":  true,
	"bearer_token":  true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"jwt":           true,
}

// RedactedContext returns a copy of the error's Context with sensitive keys
// removed, suitable for inclusion in a wire-visible error.data field.
func (e *DomainError) RedactedContext() map[string]interface{} {
	if len(e.Context) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(e.Context))
	for k, v := range e.Context {
		if sensitiveKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}
