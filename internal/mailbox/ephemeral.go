package mailbox

import "encoding/json"

// ParseEphemeralHeader validates the `ephemeral` header: if present, it
// must be a JSON boolean. Any other JSON type (in particular a string
// "true"/"false") is a protocol error, not a truthy/falsy value.
func ParseEphemeralHeader(raw json.RawMessage) (bool, error) {
	if len(raw) == 0 {
		return false, nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, ErrEphemeralHeaderInvalid
	}
	return v, nil
}
