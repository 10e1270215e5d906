package credential

import (
	"crypto/ed25519"

	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
)

const (
	DIDContextV1            = "https://www.w3.org/ns/did/v1"
	VerificationKeyType2020 = "Ed25519VerificationKey2020"
)

type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

// DIDDocument describes one holder or issuer key. A key change means a new
// document, never an edit of an issued one.
type DIDDocument struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
}

// KeyID returns the verification method id for did.
func KeyID(did string) string { return did + "#key-1" }

// NewDIDDocument builds the document for did with a single Ed25519 key.
// Output depends only on the inputs.
func NewDIDDocument(did string, pub ed25519.PublicKey) (DIDDocument, error) {
	if did == "" {
		return DIDDocument{}, errs.New(errs.Parse, "DID-DOC-001", "empty did")
	}
	mb, err := keys.EncodeMultibaseKey(pub)
	if err != nil {
		return DIDDocument{}, err
	}
	kid := KeyID(did)
	return DIDDocument{
		Context: []string{DIDContextV1},
		ID:      did,
		VerificationMethod: []VerificationMethod{{
			ID:                 kid,
			Type:               VerificationKeyType2020,
			Controller:         did,
			PublicKeyMultibase: mb,
		}},
		Authentication: []string{kid},
	}, nil
}

// PublicKey returns the Ed25519 key for verification method id.
func (d DIDDocument) PublicKey(id string) (ed25519.PublicKey, error) {
	for _, vm := range d.VerificationMethod {
		if vm.ID == id {
			return keys.DecodeMultibaseKey(vm.PublicKeyMultibase)
		}
	}
	return nil, errs.New(errs.Crypto, "DID-DOC-002", "verification method not found: "+id)
}

// DIDKey returns the did:key identifier for pub.
func DIDKey(pub ed25519.PublicKey) (string, error) { return keys.DIDKey(pub) }
