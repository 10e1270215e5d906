package model

import (
	"vey.dev/pidcore/audit"
	"vey.dev/pidcore/handshake"
	"vey.dev/pidcore/pid"
	"vey.dev/pidcore/zkp"
)

type ErrorResponse struct {
	Error *CodedError `json:"error"`
}

type PIDValidationRequest struct {
	PID string `json:"pid"`
}

type PIDValidationResponse struct {
	PID        string          `json:"pid"`
	Valid      bool            `json:"valid"`
	Depth      int             `json:"depth,omitempty"`
	Components *pid.Components `json:"components,omitempty"`
	Error      *CodedError     `json:"error,omitempty"`
}

// ValidatePID never fails; an invalid PID is reported in the response.
func ValidatePID(p string) PIDValidationResponse {
	c, err := pid.Parse(p)
	if err != nil {
		return PIDValidationResponse{PID: p, Error: FromError(err)}
	}
	depth, _ := pid.Depth(p)
	return PIDValidationResponse{PID: p, Valid: true, Depth: depth, Components: &c}
}

// ShippingValidationRequest is sent by the holder's own agent, which is the
// only party that sees the address. CircuitID selects a registered circuit.
type ShippingValidationRequest struct {
	Request   zkp.ShippingRequest `json:"request"`
	Address   pid.Address         `json:"address"`
	CircuitID string              `json:"circuitId,omitempty"`
}

type IssueTokenRequest struct {
	WaybillNumber string         `json:"waybillNumber"`
	OrderID       string         `json:"orderId"`
	CarrierCode   string         `json:"carrierCode"`
	Type          string         `json:"type"`
	ExpiresInMs   int64          `json:"expiresIn,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type IssueTokenResponse struct {
	Token handshake.Token `json:"token"`
	QR    string          `json:"qr"`
	NFC   string          `json:"nfc"`
}

type VerifyTokenRequest struct {
	Token string `json:"token"`
}

type TrackingRequest struct {
	TrackingNumber string          `json:"trackingNumber"`
	Type           string          `json:"type"`
	Description    string          `json:"description"`
	Location       *audit.Location `json:"location,omitempty"`
}
