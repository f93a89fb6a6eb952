// Package fetch downloads candidate image payloads over HTTP.
//
// Client sends a fixed browser-like header set, optionally through a proxy
// and optionally with a Chrome TLS fingerprint, and maps every failure onto
// the typed errors in pkg/errors so the download stage can decide what to
// retry.
package fetch
