// Package dispatch turns model tool calls into cart and screen mutations and
// composes the natural-language results sent back to the model. The model
// reads totals out of these result strings verbatim, so their shape is part
// of the model-facing contract.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bucketworks/kiosk/pkg/core/cart"
	"github.com/bucketworks/kiosk/pkg/core/catalog"
	"github.com/bucketworks/kiosk/pkg/core/stage"
)

// ToolCall is one function call received from the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResponse is the result returned for one ToolCall.
type ToolResponse struct {
	ID     string
	Name   string
	Result string
}

// Catalog is the slice of the product service the dispatcher needs.
type Catalog interface {
	List(ctx context.Context, q catalog.ListQuery) ([]catalog.Product, error)
	FuzzySearch(ctx context.Context, query string) ([]catalog.Product, error)
}

// Config tunes resolution and the checkout upsell.
type Config struct {
	// DisambiguateMin and DisambiguateMax bound the fuzzy result counts
	// that produce a clarification instead of a pick. Outside the band the
	// top match wins.
	DisambiguateMin int
	DisambiguateMax int

	// UpsellPriceDelta is the maximum absolute price distance between the
	// cart total and a saver item for the checkout suggestion.
	UpsellPriceDelta int

	// SaverCategory is the promotional category queried for offers and the
	// checkout upsell.
	SaverCategory string
}

func (c Config) withDefaults() Config {
	if c.DisambiguateMin == 0 {
		c.DisambiguateMin = 2
	}
	if c.DisambiguateMax == 0 {
		c.DisambiguateMax = 4
	}
	if c.UpsellPriceDelta == 0 {
		c.UpsellPriceDelta = 50
	}
	if c.SaverCategory == "" {
		c.SaverCategory = catalog.CategoryEpicSaver
	}
	return c
}

// Dispatcher executes tool-call batches against the cart and the stage.
type Dispatcher struct {
	catalog Catalog
	cart    *cart.Store
	stage   *stage.Controller
	cfg     Config
	logger  *slog.Logger
}

// New returns a dispatcher over the given stores. logger may be nil.
func New(cat Catalog, cartStore *cart.Store, stageCtl *stage.Controller, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		catalog: cat,
		cart:    cartStore,
		stage:   stageCtl,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// HandleBatch executes the calls of one model turn in order and returns one
// response per call, same order. Cart state is projected forward through the
// batch so each call sees the effect of the previous ones, and each mutation
// commits to the store as it happens. An unknown tool name yields "ok".
func (d *Dispatcher) HandleBatch(ctx context.Context, calls []ToolCall) []ToolResponse {
	projected := d.cart.Items()
	responses := make([]ToolResponse, 0, len(calls))
	for _, call := range calls {
		result := "ok"
		switch call.Name {
		case "addToCart":
			result, projected = d.addToCart(ctx, call.Args, projected)
		case "removeFromCart":
			result, projected = d.removeFromCart(call.Args, projected)
		case "clearCart":
			projected = nil
			d.cart.Clear()
			d.logger.Debug("tool clearCart")
			result = "Bucket cleared. Total: ₹0."
		case "showCategory":
			result = d.showCategory(ctx, call.Args)
		case "showOffers":
			result = d.showOffers(ctx)
		case "closeMenu":
			d.stage.CloseMenu()
			result = "Closing the menu."
		case "checkout":
			result = d.checkout(ctx, projected)
		default:
			d.logger.Warn("unknown tool call", "name", call.Name)
		}
		responses = append(responses, ToolResponse{ID: call.ID, Name: call.Name, Result: result})
	}
	return responses
}

func (d *Dispatcher) addToCart(ctx context.Context, args map[string]any, projected []cart.LineItem) (string, []cart.LineItem) {
	inputID := normalizeKey(argString(args, "productId"))
	res := d.resolve(ctx, inputID, d.stage.Products())
	switch {
	case res.err != nil:
		d.logger.Error("product search failed", "query", inputID, "err", res.err)
		return "Error searching for product.", projected
	case len(res.options) > 0:
		return fmt.Sprintf("I found multiple versions: %s. Please ask the user which one they would like to add.",
			strings.Join(res.options, ", ")), projected
	case res.product == nil:
		return fmt.Sprintf("Sorry, I couldn't find a product matching %q.", inputID), projected
	}

	qty := argInt(args, "quantity", 1)
	projected = cart.Add(projected, *res.product, qty)
	d.cart.Replace(projected)

	lines := make([]string, len(projected))
	for i, it := range projected {
		lines[i] = fmt.Sprintf("%dx %s", it.Quantity, it.Product.Name)
	}
	total := cart.Total(projected)
	d.logger.Debug("tool addToCart", "product", res.product.Name, "qty", qty, "total", total)
	return fmt.Sprintf("Added %s. Entire Bucket now: %s. Total: ₹%d.",
		res.product.Name, strings.Join(lines, ", "), total), projected
}

func (d *Dispatcher) removeFromCart(args map[string]any, projected []cart.LineItem) (string, []cart.LineItem) {
	inputID := strings.ToLower(strings.TrimSpace(argString(args, "productId")))
	qty := argInt(args, "quantity", 0)

	if cart.Find(projected, inputID) == nil {
		return fmt.Sprintf("Nothing to remove for %q. Total: ₹%d.", inputID, cart.Total(projected)), projected
	}
	projected = cart.Remove(projected, inputID, qty)
	d.cart.Replace(projected)
	total := cart.Total(projected)
	d.logger.Debug("tool removeFromCart", "key", inputID, "qty", qty, "total", total)
	return fmt.Sprintf("Removed %s. Total: ₹%d.", inputID, total), projected
}

func (d *Dispatcher) showCategory(ctx context.Context, args map[string]any) string {
	category := argString(args, "category")
	if category == "" {
		category = "All"
	}
	_, err := d.stage.ShowMenu(ctx, stage.Filters{
		Category: category,
		DietType: argString(args, "type"),
		MaxPrice: argInt(args, "maxPrice", 0),
	})
	if err != nil {
		d.logger.Error("menu refresh failed", "category", category, "err", err)
	}
	return fmt.Sprintf("Showing %s.", category)
}

func (d *Dispatcher) showOffers(ctx context.Context) string {
	_, err := d.stage.ShowMenu(ctx, stage.Filters{Category: d.cfg.SaverCategory})
	if err != nil {
		d.logger.Error("offers refresh failed", "err", err)
	}
	return "Here are our epic saver deals!"
}

// checkout moves the screen to the bill and, when a saver item sits within
// UpsellPriceDelta of the total, appends a swap suggestion. A failed saver
// lookup degrades to a plain checkout.
func (d *Dispatcher) checkout(ctx context.Context, projected []cart.LineItem) string {
	total := cart.Total(projected)
	suggestion := ""

	savers, err := d.catalog.List(ctx, catalog.ListQuery{Category: d.cfg.SaverCategory})
	if err != nil {
		d.logger.Error("saver lookup failed", "err", err)
	}
	for _, item := range savers {
		diff := item.Price - total
		if diff < 0 {
			diff = -diff
		}
		if diff > 0 && diff <= d.cfg.UpsellPriceDelta {
			suggestion = fmt.Sprintf(" Wait! Your total is ₹%d. You can get the %q for just ₹%d, which is almost the same! Want to add it instead?",
				total, item.Name, item.Price)
			break
		}
	}

	d.stage.SetView(stage.ViewBill)
	d.logger.Debug("tool checkout", "total", total, "upsell", suggestion != "")
	return fmt.Sprintf("Proceeding to checkout. Total: ₹%d. Here is your final bill summary.%s", total, suggestion)
}

func argString(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// argInt reads a numeric argument. Function-call args arrive as JSON, so
// numbers decode as float64.
func argInt(args map[string]any, key string, def int) int {
	if args == nil {
		return def
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}
