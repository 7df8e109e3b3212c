// Package concepts manages the named reference vectors behind the explore
// sliders.
//
// Bootstrap is an administrative full replace: the concept collection is
// dropped, recreated and filled with one point per vocabulary entry. Lookups
// go through an explicit cache owned by the Store, refreshed by Bootstrap or
// Reload and cleared by Invalidate.
package concepts
