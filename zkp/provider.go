package zkp

import (
	"encoding/hex"
	"slices"

	"vey.dev/pidcore/canonical"
	"vey.dev/pidcore/errs"
	"vey.dev/pidcore/keys"
)

// AddressProvider is an organisation that holds raw addresses and serves
// proofs for them.
type AddressProvider struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	DID                string    `json:"did"`
	VerificationKey    string    `json:"verificationKey"`
	Endpoint           string    `json:"endpoint"`
	Circuits           []Circuit `json:"circuits"`
	SupportedCountries []string  `json:"supportedCountries,omitempty"`
}

// NewAddressProvider validates the descriptor. verificationKey is a did:key,
// a multibase Ed25519 key or "<alg>:<base64>".
func NewAddressProvider(id, name, did, verificationKey, endpoint string, circuits []Circuit, countries []string) (AddressProvider, error) {
	if id == "" || did == "" {
		return AddressProvider{}, errs.New(errs.Parse, "ZKP-PROV-001", "provider id and did are required")
	}
	if _, err := keys.ParsePublicKey(verificationKey); err != nil {
		return AddressProvider{}, err
	}
	for _, c := range circuits {
		if err := c.validate(); err != nil {
			return AddressProvider{}, err
		}
	}
	return AddressProvider{
		ID:                 id,
		Name:               name,
		DID:                did,
		VerificationKey:    verificationKey,
		Endpoint:           endpoint,
		Circuits:           circuits,
		SupportedCountries: countries,
	}, nil
}

// Circuit returns the provider's circuit with the given id.
func (p AddressProvider) Circuit(id string) (Circuit, bool) {
	for _, c := range p.Circuits {
		if c.ID == id {
			return c, true
		}
	}
	return Circuit{}, false
}

// Supports reports whether the provider serves country. An empty list means
// every country.
func (p AddressProvider) Supports(country string) bool {
	return len(p.SupportedCountries) == 0 || slices.Contains(p.SupportedCountries, country)
}

// SignProviderPayload signs the canonical JSON of payload and returns hex.
func SignProviderPayload(payload any, signer keys.Signer) (string, error) {
	b, err := canonical.Marshal(payload)
	if err != nil {
		return "", err
	}
	sig, err := signer.Sign(b)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "ZKP-PROV-002", "sign payload", err)
	}
	return hex.EncodeToString(sig), nil
}

// VerifyProviderSignature checks a hex signature over the canonical JSON of
// payload against the provider's verification key.
func VerifyProviderSignature(payload any, sigHex string, provider AddressProvider) bool {
	pub, err := keys.ParsePublicKey(provider.VerificationKey)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	b, err := canonical.Marshal(payload)
	if err != nil {
		return false
	}
	return pub.Verify(b, sig) == nil
}
