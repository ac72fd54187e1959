package cryptox

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// ContactKeyMaterial is the capability a trusted contact registers for key
// escrow: anything able to seal a record key so that only the contact can
// open it. The concrete algorithm (asymmetric vs. symmetric escrow) is
// swappable without touching the state machine.
type ContactKeyMaterial interface {
	// Seal encrypts plaintext so only the holder of the matching secret
	// can recover it.
	Seal(plaintext []byte) ([]byte, error)
}

// BoxPublicKey is ContactKeyMaterial backed by an X25519 public key and
// NaCl anonymous sealed boxes.
type BoxPublicKey struct {
	pk [32]byte
}

// NewBoxPublicKey validates and wraps a 32-byte X25519 public key.
func NewBoxPublicKey(publicKey []byte) (*BoxPublicKey, error) {
	if len(publicKey) != 32 {
		return nil, fmt.Errorf("invalid public key length: %d", len(publicKey))
	}
	k := &BoxPublicKey{}
	copy(k.pk[:], publicKey)
	return k, nil
}

func (k *BoxPublicKey) Seal(plaintext []byte) ([]byte, error) {
	return box.SealAnonymous(nil, plaintext, &k.pk, rand.Reader)
}

// GenerateContactKeyPair creates the X25519 key pair a contact registers when
// accepting an invitation. The private key never leaves the contact's device.
func GenerateContactKeyPair() (publicKey, privateKey []byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub[:], priv[:], nil
}

// RewrapForContact wraps recordKey under the contact's key material. The
// result is decryptable only with the contact-held secret, never with the
// owner's master key, so compromise of one contact's escrow discloses neither
// the master key nor other contacts' grants.
func RewrapForContact(recordKey []byte, contact ContactKeyMaterial) ([]byte, error) {
	return contact.Seal(recordKey)
}

// OpenSealed recovers a record key from a sealed escrow envelope using the
// contact's key pair. This is the contact-side counterpart of RewrapForContact.
func OpenSealed(sealed, publicKey, privateKey []byte) ([]byte, error) {
	if len(publicKey) != 32 || len(privateKey) != 32 {
		return nil, fmt.Errorf("invalid key pair length")
	}
	var pub, priv [32]byte
	copy(pub[:], publicKey)
	copy(priv[:], privateKey)

	recordKey, ok := box.OpenAnonymous(nil, sealed, &pub, &priv)
	if !ok {
		return nil, fmt.Errorf("sealed envelope open failed")
	}
	return recordKey, nil
}
