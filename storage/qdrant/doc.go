// Package qdrant implements storage.VectorIndex against a Qdrant server.
//
// Point operations, collection lifecycle and snapshot creation go through the
// official gRPC client. Snapshot download and upload use the HTTP API because
// file transfer is not part of the gRPC surface.
//
// Recommend queries use the average-vector strategy so results match the
// embedded Badger index.
package qdrant
