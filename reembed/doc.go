// Package reembed rebuilds the item collection from the catalog.
//
// A run replaces the collection wholesale: it drops and recreates it, embeds
// the mood references, then pages through every movie, embedding
// "title | genres | overview" documents in batches on a bounded worker pool.
// Provider calls are paced by a rate limiter and retried with exponential
// backoff.
package reembed
