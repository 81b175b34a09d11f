package dispatch

// Categories the menu exposes to the model. The product service is the source
// of truth for contents; this list only bounds the showCategory argument.
var Categories = []string{
	"All", "Burger", "Grill", "epic_saver", "Add-on", "Rice Bowlz", "Meal",
	"Snacks", "Dips", "Roll", "Desserts", "Bucket", "Beverages", "Combo",
}

// ParamSpec describes one tool argument.
type ParamSpec struct {
	Type        string
	Description string
	Enum        []string
}

// ToolSpec is a provider-neutral tool declaration. Providers translate it into
// their own function-calling schema. The argument shapes are part of the
// model-facing contract and change only with a new manifest version.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
	Required    []string
}

// Manifest returns the tool declarations the kiosk exposes to the model.
func Manifest() []ToolSpec {
	return []ToolSpec{
		{
			Name:        "addToCart",
			Description: "Adds an item to the shopping cart.",
			Parameters: map[string]ParamSpec{
				"productId": {
					Type:        "STRING",
					Description: `The unique ID (e.g., "20", "1") or the name of the product. Users see these IDs as #ID on the menu cards. Always use this tool immediately if the user asks for a specific item.`,
				},
				"quantity": {
					Type:        "NUMBER",
					Description: "How many items to add. Defaults to 1.",
				},
			},
			Required: []string{"productId"},
		},
		{
			Name:        "removeFromCart",
			Description: "Removes an item from the shopping cart.",
			Parameters: map[string]ParamSpec{
				"productId": {
					Type:        "STRING",
					Description: "The unique ID or name of the product to remove.",
				},
				"quantity": {
					Type:        "NUMBER",
					Description: "How many to remove. If not specified, removes the whole line.",
				},
			},
			Required: []string{"productId"},
		},
		{
			Name:        "showCategory",
			Description: "Shows items in the center of the screen. Always call this when the user asks for products.",
			Parameters: map[string]ParamSpec{
				"category": {
					Type:        "STRING",
					Description: "The category to display. Defaults to All.",
					Enum:        Categories,
				},
				"type": {
					Type:        "STRING",
					Description: "Filter by veg or non_veg.",
					Enum:        []string{"veg", "non_veg"},
				},
				"maxPrice": {
					Type:        "NUMBER",
					Description: "Filter by maximum price.",
				},
			},
			Required: []string{"category"},
		},
		{
			Name:        "clearCart",
			Description: "Clears all items from the bucket.",
		},
		{
			Name:        "showOffers",
			Description: "Shows all available combos, buckets, and special offers. Use this when the user says they are finished, want to checkout, or ask for deals.",
		},
		{
			Name:        "closeMenu",
			Description: "Closes any open menu or offer component and returns to the idle state. Use this when the user is done or wants to hide the menu.",
		},
		{
			Name:        "checkout",
			Description: "Call this when the user is done ordering and wants to pay or see the final bill. This shows the final summary.",
		},
	}
}
