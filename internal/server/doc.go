// Package server implements the HTTP ingestion endpoint for raw PCM uploads
// along with the health, recordings and metrics endpoints. The upload route
// treats request bodies as opaque binary: a connection-level filter strips
// Transfer-Encoding from the request head so the HTTP layer never attempts
// chunked decoding, and unframed streams are read straight off the hijacked
// connection.
package server
