// Package tlsutil holds the TLS settings shared by the API listener and the
// Redis client: TLS 1.2 minimum, AEAD cipher suites only.
package tlsutil
