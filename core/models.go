package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// PointID identifies a point inside a vector index collection.
// Item IDs stay strings everywhere in the core; point IDs are derived from them.
type PointID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) PointID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return PointID(binary.LittleEndian.Uint64(sum))
}

// PointIDFor returns the canonical point ID for an item of the given type.
// The type namespaces the hash so a movie and a mood sharing an ID never collide.
func PointIDFor(pointType PointType, itemID string) PointID {
	return IDFromContent(string(pointType) + ":" + itemID)
}

// PointType tags what a point in the item collection represents.
type PointType string

const (
	// PointTypeMovie marks a regular catalog item.
	PointTypeMovie PointType = "movie"
	// PointTypeMood marks an auxiliary mood reference vector.
	PointTypeMood PointType = "mood"
	// PointTypeConcept marks a concept reference vector.
	PointTypeConcept PointType = "concept"
)

// AuxiliaryPointTypes lists point types that must never surface as item results.
var AuxiliaryPointTypes = []PointType{PointTypeMood, PointTypeConcept}

// Payload keys shared by every writer and reader of the vector index.
const (
	PayloadItemID     = "item_id"
	PayloadType       = "type"
	PayloadTitle      = "title"
	PayloadYear       = "year"
	PayloadGenres     = "genres"
	PayloadName       = "name"
	PayloadSourceText = "source_text"
	PayloadCreatedAt  = "created_at"
)

// Movie is a catalog record owned by the metadata store.
type Movie struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Overview    string    `json:"overview,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	ReleaseYear int       `json:"releaseYear,omitempty"`
	PosterPath  string    `json:"posterPath,omitempty"`
	Popularity  float64   `json:"popularity,omitempty"`
	PointID     PointID   `json:"-"` // 0 when the movie has not been indexed
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Favorite is a persisted favorites membership.
type Favorite struct {
	ItemID  string    `json:"itemId"`
	AddedAt time.Time `json:"addedAt"`
}

// ConceptVector is a named reference direction in embedding space.
type ConceptVector struct {
	Name       string
	Vector     []float32
	SourceText string
	CreatedAt  time.Time
}

// ConceptWeights maps a concept name to a weight in [-1, 1]. Zero means neutral.
type ConceptWeights map[string]float64

// Active returns the entries with a non-zero weight.
func (w ConceptWeights) Active() ConceptWeights {
	active := make(ConceptWeights, len(w))
	for name, weight := range w {
		if weight != 0 {
			active[name] = weight
		}
	}
	return active
}

// Action is a swipe decision on an item.
type Action string

const (
	ActionLike    Action = "like"
	ActionDislike Action = "dislike"
)

// UserAction is one entry of a swipe history.
type UserAction struct {
	ItemID string `json:"itemId" validate:"required"`
	Action Action `json:"action" validate:"required,oneof=like dislike"`
}

// Point is a stored vector with its identifier and payload.
type Point struct {
	ID      PointID
	Vector  []float32
	Payload map[string]any
}

// ItemID returns the external item ID stored in the payload, if any.
func (p *Point) ItemID() string {
	return PayloadString(p.Payload, PayloadItemID)
}

// Type returns the point type stored in the payload.
func (p *Point) Type() PointType {
	return PointType(PayloadString(p.Payload, PayloadType))
}

// ScoredPoint is a point returned by a similarity query.
type ScoredPoint struct {
	ID      PointID
	Score   float32
	Payload map[string]any
}

// ItemID returns the external item ID stored in the payload, if any.
func (p *ScoredPoint) ItemID() string {
	return PayloadString(p.Payload, PayloadItemID)
}

// PayloadString reads a string payload field, returning "" when absent.
func PayloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// SearchResult is a ranked, metadata-enriched result.
type SearchResult struct {
	ItemID string  `json:"itemId"`
	Score  float32 `json:"score"`
	Rank   int     `json:"rank"`
	Movie  *Movie  `json:"movie"`
}

// Mode reports which strategy produced a result set.
type Mode string

const (
	ModeConcept     Mode = "concept"
	ModeText        Mode = "text"
	ModeSwipe       Mode = "swipe"
	ModePersonalize Mode = "personalize"
	ModeSimilar     Mode = "similar"
	ModeMoodBlend   Mode = "mood_blend"
	ModeRandom      Mode = "random"
)
