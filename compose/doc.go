// Package compose builds queries from user signals.
//
// Concept sliders become a single target vector, free text is embedded, and
// swipe histories or favorites become sets of positive and negative example
// points for index-side recommendation. Favorites can also be aggregated into
// one document and embedded once.
package compose
