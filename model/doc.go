// Package model defines stable boundary types for the HTTP and CLI layers.
//
// Signed and hashed documents (credentials, revocation lists, tokens, audit
// entries) keep their own JSON shape; these structs wrap them for transport
// and map internal errors to stable codes.
package model
