package services

import "canvasmind/internal/models"

// experts is the advisory persona registry. IDs are stable public
// identifiers used in turn requests.
var experts = []models.Expert{
	{
		ID:          "strategy",
		Name:        "Marta Velez",
		Title:       "Business Strategy Advisor",
		Description: "Helps structure the overall business model and find the weakest block.",
		SystemStyle: "You think in business model canvas terms. You ask one sharp question at a time and tie every answer back to a canvas block.",
	},
	{
		ID:          "finance",
		Name:        "Daniel Okafor",
		Title:       "Finance & Pricing Advisor",
		Description: "Focuses on revenue streams, cost structure and pricing decisions.",
		SystemStyle: "You are numbers-first. You push for concrete figures, unit economics and explicit cost assumptions before giving advice.",
	},
	{
		ID:          "marketing",
		Name:        "Sofia Lindgren",
		Title:       "Marketing & Channels Advisor",
		Description: "Works on customer segments, channels and relationships.",
		SystemStyle: "You reason from the customer's point of view. You insist on naming a specific segment before discussing any channel or message.",
	},
}

// ListExperts returns the registry.
func ListExperts() []models.Expert {
	return append([]models.Expert(nil), experts...)
}

// ExpertByID looks up a persona. The second return is false for unknown IDs.
func ExpertByID(id string) (models.Expert, bool) {
	for _, e := range experts {
		if e.ID == id {
			return e, true
		}
	}
	return models.Expert{}, false
}
