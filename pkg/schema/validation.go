package schema

// ValidationFailedMessage is the fixed companion message stored next to a
// diagnostic when an execution result fails its output schema. Consumers
// match on it verbatim.
const ValidationFailedMessage = "Error validating output. See error output for more details."

// NewValidationErrorPayload builds the result payload that replaces an
// execution result on output validation failure. The payload carries
// exactly two keys: the engine diagnostic under "error" and the fixed
// companion message under "message".
func NewValidationErrorPayload(diagnostic string) map[string]any {
	return map[string]any{
		"error":   diagnostic,
		"message": ValidationFailedMessage,
	}
}

// IsValidationErrorPayload reports whether a result value has the exact
// shape produced by NewValidationErrorPayload.
func IsValidationErrorPayload(result any) bool {
	m, ok := result.(map[string]any)
	if !ok || len(m) != 2 {
		return false
	}
	if _, ok := m["error"]; !ok {
		return false
	}
	msg, ok := m["message"].(string)
	return ok && msg == ValidationFailedMessage
}
