// Package metrics exposes prometheus collectors for the engine, the
// embedding provider and the HTTP API.
//
// Collectors register with the default registry on import. Wire
// EngineMonitor into search.NewEngine with search.WithMonitor and wrap the
// provider's embedder with InstrumentEmbedder.
package metrics
