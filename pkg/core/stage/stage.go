// Package stage tracks what the kiosk screen is showing: the current view,
// the active menu filters, and the product list those filters select.
package stage

import (
	"context"
	"sync"

	"github.com/bucketworks/kiosk/pkg/core/catalog"
)

// View names a kiosk screen.
type View string

const (
	ViewIdle       View = "IDLE"
	ViewMenuPicker View = "MENU_PICKER"
	ViewUpsell     View = "UPSELL"
	ViewCart       View = "CART"
	ViewBill       View = "BILL"
)

// Filters is the active menu selection. Category empty means no menu is open.
type Filters struct {
	Category string
	DietType string
	MaxPrice int
}

// Lister fetches products for a filter set. *catalog.Client satisfies it.
type Lister interface {
	List(ctx context.Context, q catalog.ListQuery) ([]catalog.Product, error)
}

// State is a snapshot of the screen.
type State struct {
	View     View
	Filters  Filters
	Products []catalog.Product
}

// Controller owns the screen state. Mutations take effect immediately even
// when the product refresh behind them fails; the screen then shows an empty
// list rather than stale products.
type Controller struct {
	lister Lister

	mu       sync.Mutex
	view     View
	filters  Filters
	products []catalog.Product

	// OnChange, if set, fires after every mutation with the new state.
	OnChange func(State)
}

// NewController returns a controller in the idle view.
func NewController(lister Lister) *Controller {
	return &Controller{lister: lister, view: ViewIdle}
}

// State returns a snapshot of the current screen.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// ShowMenu opens the menu picker on the given filters and refreshes the
// product list. The view and filters change even if the refresh fails.
func (c *Controller) ShowMenu(ctx context.Context, f Filters) ([]catalog.Product, error) {
	products, err := c.list(ctx, f)

	c.mu.Lock()
	c.view = ViewMenuPicker
	c.filters = f
	c.products = products
	c.mu.Unlock()

	c.notify()
	return products, err
}

// SetView switches the screen without touching filters or products.
func (c *Controller) SetView(v View) {
	c.mu.Lock()
	c.view = v
	c.mu.Unlock()
	c.notify()
}

// CloseMenu clears filters and products and returns to the idle view.
func (c *Controller) CloseMenu() {
	c.mu.Lock()
	c.view = ViewIdle
	c.filters = Filters{}
	c.products = nil
	c.mu.Unlock()
	c.notify()
}

// Products returns the currently visible product list.
func (c *Controller) Products() []catalog.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Controller) list(ctx context.Context, f Filters) ([]catalog.Product, error) {
	if c.lister == nil || f.Category == "" {
		return nil, nil
	}
	return c.lister.List(ctx, catalog.ListQuery{
		Category: f.Category,
		DietType: f.DietType,
		MaxPrice: f.MaxPrice,
	})
}

func (c *Controller) notify() {
	c.mu.Lock()
	onChange := c.OnChange
	state := c.snapshotLocked()
	c.mu.Unlock()
	if onChange != nil {
		onChange(state)
	}
}

func (c *Controller) snapshotLocked() State {
	products := make([]catalog.Product, len(c.products))
	copy(products, c.products)
	return State{View: c.view, Filters: c.filters, Products: products}
}
