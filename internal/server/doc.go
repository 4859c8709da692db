// Package server implements the HTTP surface of the chunked file
// sharing service: upload session lifecycle, per-chunk persistence,
// ordered reassembly into stored objects, password-gated downloads and
// the retention sweeper. It wires the metadata store, the object store
// and the middleware stack, and provides lifecycle helpers used by
// tests and the production binary.
package server
