package models

// RememberToken is a persistent-login row. Both the token id and its secret
// are stored only as one-way hashes; the cookie carries the plaintext pair
// joined by the configured separator. The secret rotates on every
// successful restore, so a stolen cookie stops working after its first use.
type RememberToken struct {
	IDHash     []byte
	UserID     string
	SecretHash []byte
}
