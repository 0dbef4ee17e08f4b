// Package crypto derives the comparison history encryption key from a
// master secret, so one secret can be shared by many projects without
// reusing the database key.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of a derived database key in bytes (256 bits).
	KeySize = 32

	// MinMasterKeySize is the shortest accepted master secret.
	MinMasterKeySize = 32
)

// DeriveKey derives a database key from a master secret using HKDF-SHA256.
// scope and version separate keys of different ledgers:
// info = "history:" + scope + ":v" + version
func DeriveKey(masterKey []byte, scope string, version int) []byte {
	info := fmt.Sprintf("history:%s:v%d", scope, version)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF only fails when asked for more than 255 hash lengths.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// DeriveHexKey returns DeriveKey as the 64 character hex string expected by
// the history ledger.
func DeriveHexKey(masterKey []byte, scope string, version int) (string, error) {
	if len(masterKey) < MinMasterKeySize {
		return "", fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeySize, len(masterKey))
	}
	return hex.EncodeToString(DeriveKey(masterKey, scope, version)), nil
}
