package concepts

// Definition names a reference direction and the text it is embedded from.
type Definition struct {
	Name string
	Text string
}

// Vocabulary is the fixed set of explore sliders.
var Vocabulary = []Definition{
	{
		Name: "adventure",
		Text: "A thrilling adventure film full of epic journeys, daring quests, exploration of far-off lands and action-packed heroics.",
	},
	{
		Name: "romance",
		Text: "A romantic love story about passionate relationships, heartfelt courtship and two people falling in love.",
	},
	{
		Name: "complexity",
		Text: "An intricate, cerebral film with layered narratives, puzzles, ambiguity and twists that reward close attention.",
	},
	{
		Name: "emotion",
		Text: "An emotionally powerful drama with deeply moving characters, grief, joy and cathartic tearjerker moments.",
	},
	{
		Name: "realism",
		Text: "A grounded, realistic portrayal of everyday life based on true events with documentary-like authenticity.",
	},
}

// Moods are auxiliary reference points stored alongside movies in the item
// collection and blended by the mood endpoint.
var Moods = []Definition{
	{
		Name: "cozy",
		Text: "A warm, cozy, comforting feel-good movie for a quiet night in, gentle humor and kind characters.",
	},
	{
		Name: "tense",
		Text: "A tense, suspenseful thriller with mounting dread, high stakes and edge-of-your-seat pacing.",
	},
	{
		Name: "melancholic",
		Text: "A melancholic, bittersweet and reflective film about loss, memory and loneliness.",
	},
	{
		Name: "uplifting",
		Text: "An uplifting, inspiring story of hope, perseverance and triumph over adversity.",
	},
	{
		Name: "mind-bending",
		Text: "A mind-bending, surreal story that plays with reality, time and perception.",
	},
}

// Names returns the names of the given definitions in order.
func Names(defs []Definition) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
