package secrets

// Sealer encrypts raw execution results before they are persisted.
// The store only ever sees sealed bytes; opening happens on demand
// when a caller explicitly asks for the unmasked result.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}
