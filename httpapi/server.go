// Package httpapi exposes PID validation, shipping proofs, resolution,
// handshake tokens, revocation lists and tracking over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog/log"
	"github.com/spiffe/go-spiffe/v2/svid/x509svid"

	"vey.dev/pidcore/audit"
	"vey.dev/pidcore/handshake"
	"vey.dev/pidcore/model"
	"vey.dev/pidcore/resolver"
	"vey.dev/pidcore/revocation"
	"vey.dev/pidcore/zkp"
)

const maxBodyBytes = 1 << 20

// Resolver is satisfied by *resolver.Resolver.
type Resolver interface {
	ResolveWithSet(ctx context.Context, req resolver.Request) (resolver.Response, error)
}

// TokenService is satisfied by *handshake.Service.
type TokenService interface {
	Generate(waybillNumber, orderID, carrierCode string, typ handshake.Type, expiresIn time.Duration, metadata map[string]any) (handshake.Token, error)
	Verify(ctx context.Context, encoded string) handshake.Result
}

// RevocationView is satisfied by *revocation.Registry.
type RevocationView interface {
	Current() *revocation.List
	CurrentCID() cid.Cid
}

// Server holds the collaborators behind each route. A nil collaborator
// disables its routes with 501. DefaultCircuit is used when a shipping
// request names no circuit. TrustProxy takes the client address from
// X-Forwarded-For / X-Real-IP; set it only behind a proxy that overwrites
// those headers.
type Server struct {
	Resolver       Resolver
	Engine         *zkp.Engine
	Circuits       map[string]zkp.Circuit
	DefaultCircuit string
	Tokens         TokenService
	Revocations    RevocationView
	Tracking       audit.TrackingSink
	TrustProxy     bool
	Now            func() time.Time
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Routes returns the router. Callers mount it on their own listener.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			log.Debug().Err(err).Msg("write healthz")
		}
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/pid/validate", s.validatePID)
		r.Post("/shipping/validate", s.validateShipping)
		r.Post("/resolve", s.resolve)
		r.Post("/handshake/tokens", s.issueToken)
		r.Post("/handshake/verify", s.verifyToken)
		r.Get("/revocations/current", s.currentRevocations)
		r.Post("/tracking", s.track)
	})
	return r
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, ce *model.CodedError) {
	writeJSON(w, ce.Code.HTTPStatus(), model.ErrorResponse{Error: ce})
}

func unavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotImplemented, model.ErrorResponse{
		Error: model.NewError(model.ErrConfig, what+" is not configured"),
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeError(w, model.NewError(model.ErrInvalidRequest, msg))
		return false
	}
	return true
}

func (s *Server) validatePID(w http.ResponseWriter, r *http.Request) {
	var req model.PIDValidationRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, model.ValidatePID(req.PID))
}

func (s *Server) circuit(id string) (zkp.Circuit, *model.CodedError) {
	if id == "" {
		id = s.DefaultCircuit
	}
	c, ok := s.Circuits[id]
	if !ok {
		return zkp.Circuit{}, model.NewError(model.ErrNotFound, "unknown circuit "+id)
	}
	return c, nil
}

// validateShipping answers 200 for both outcomes; a failed condition is a
// valid=false response, not an HTTP error.
func (s *Server) validateShipping(w http.ResponseWriter, r *http.Request) {
	if s.Engine == nil {
		unavailable(w, "proof engine")
		return
	}
	var req model.ShippingValidationRequest
	if !decode(w, r, &req) {
		return
	}
	c, ce := s.circuit(req.CircuitID)
	if ce != nil {
		writeError(w, ce)
		return
	}
	if req.Request.Timestamp.IsZero() {
		req.Request.Timestamp = s.now()
	}
	writeJSON(w, http.StatusOK, s.Engine.ValidateShippingRequest(req.Request, c, req.Address))
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	if s.Resolver == nil {
		unavailable(w, "resolver")
		return
	}
	var req resolver.Request
	if !decode(w, r, &req) {
		return
	}
	req.IPAddress = clientIP(r)
	req.PeerID = peerID(r)
	if req.Timestamp.IsZero() {
		req.Timestamp = s.now()
	}
	resp, err := s.Resolver.ResolveWithSet(r.Context(), req)
	if err != nil {
		writeError(w, model.FromError(err))
		return
	}
	status := http.StatusOK
	switch {
	case resp.Success:
	case resp.Error == resolver.ErrAccessDenied:
		status = http.StatusForbidden
	case resp.Error == resolver.ErrAddressNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// peerID is the SPIFFE ID of the verified mTLS client, or "".
func peerID(r *http.Request) string {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	id, err := x509svid.IDFromCert(r.TLS.PeerCertificates[0])
	if err != nil {
		log.Debug().Err(err).Msg("peer certificate carries no SPIFFE ID")
		return ""
	}
	return id.String()
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	if s.Tokens == nil {
		unavailable(w, "handshake service")
		return
	}
	var req model.IssueTokenRequest
	if !decode(w, r, &req) {
		return
	}
	typ, err := handshake.ParseType(req.Type)
	if err != nil {
		writeError(w, model.FromError(err))
		return
	}
	if req.ExpiresInMs < 0 {
		writeError(w, model.NewError(model.ErrInvalidRequest, "expiresIn must not be negative"))
		return
	}
	t, err := s.Tokens.Generate(req.WaybillNumber, req.OrderID, req.CarrierCode, typ,
		time.Duration(req.ExpiresInMs)*time.Millisecond, req.Metadata)
	if err != nil {
		writeError(w, model.FromError(err))
		return
	}
	qr, err := handshake.QRPayload(t)
	if err != nil {
		writeError(w, model.FromError(err))
		return
	}
	writeJSON(w, http.StatusCreated, model.IssueTokenResponse{Token: t, QR: qr, NFC: handshake.NFCPrefix + qr})
}

// verifyToken answers 200 for a valid token. A rejection keeps the Result
// body and maps its reason to a status: INVALID_TOKEN 400, TOKEN_EXPIRED and
// INVALID_SIGNATURE 401, NONCE_REUSED 409, NONCE_STORE_UNAVAILABLE 503.
func (s *Server) verifyToken(w http.ResponseWriter, r *http.Request) {
	if s.Tokens == nil {
		unavailable(w, "handshake service")
		return
	}
	var req model.VerifyTokenRequest
	if !decode(w, r, &req) {
		return
	}
	res := s.Tokens.Verify(r.Context(), req.Token)
	status := http.StatusOK
	if !res.Valid {
		status = model.FromError(res.Err()).Code.HTTPStatus()
	}
	writeJSON(w, status, res)
}

func (s *Server) currentRevocations(w http.ResponseWriter, _ *http.Request) {
	if s.Revocations == nil {
		unavailable(w, "revocation registry")
		return
	}
	list := s.Revocations.Current()
	if list == nil {
		writeError(w, model.NewError(model.ErrNotFound, "no revocation list loaded"))
		return
	}
	if id := s.Revocations.CurrentCID(); id.Defined() {
		w.Header().Set("X-Revocation-CID", id.String())
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) track(w http.ResponseWriter, r *http.Request) {
	if s.Tracking == nil {
		unavailable(w, "tracking sink")
		return
	}
	var req model.TrackingRequest
	if !decode(w, r, &req) {
		return
	}
	ev, err := audit.NewTrackingEvent(req.TrackingNumber, req.Type, req.Description, req.Location)
	if err != nil {
		writeError(w, model.FromError(err))
		return
	}
	if err := s.Tracking.AppendTracking(r.Context(), ev); err != nil {
		writeError(w, model.FromError(err))
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}
