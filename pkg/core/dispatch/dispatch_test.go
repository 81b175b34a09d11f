package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/bucketworks/kiosk/pkg/core/cart"
	"github.com/bucketworks/kiosk/pkg/core/catalog"
	"github.com/bucketworks/kiosk/pkg/core/stage"
)

var (
	zinger = catalog.Product{ID: "1", Name: "Veg Zinger Burger", Price: 199, Category: "Burger"}
	pepsi  = catalog.Product{ID: "2", Name: "Pepsi", Price: 60, Category: "Beverages"}
)

type fakeCatalog struct {
	listed      []catalog.Product
	listErr     error
	fuzzy       map[string][]catalog.Product
	fuzzyErr    error
	fuzzyCalled []string
}

func (f *fakeCatalog) List(_ context.Context, q catalog.ListQuery) ([]catalog.Product, error) {
	return f.listed, f.listErr
}

func (f *fakeCatalog) FuzzySearch(_ context.Context, query string) ([]catalog.Product, error) {
	f.fuzzyCalled = append(f.fuzzyCalled, query)
	if f.fuzzyErr != nil {
		return nil, f.fuzzyErr
	}
	return f.fuzzy[query], nil
}

func newDispatcher(t *testing.T, cat *fakeCatalog) (*Dispatcher, *cart.Store, *stage.Controller) {
	t.Helper()
	store := &cart.Store{}
	ctl := stage.NewController(cat)
	d := New(cat, store, ctl, Config{}, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	return d, store, ctl
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func call(name string, args map[string]any) ToolCall {
	return ToolCall{ID: fmt.Sprintf("call-%s", name), Name: name, Args: args}
}

func TestAddFromVisibleProductsByID(t *testing.T) {
	cat := &fakeCatalog{listed: []catalog.Product{zinger, pepsi}}
	d, store, ctl := newDispatcher(t, cat)
	ctl.ShowMenu(context.Background(), stage.Filters{Category: "All"})

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "1", "quantity": float64(2)}),
	})
	want := "Added Veg Zinger Burger. Entire Bucket now: 2x Veg Zinger Burger. Total: ₹398."
	if resp[0].Result != want {
		t.Fatalf("result = %q, want %q", resp[0].Result, want)
	}
	if store.Total() != 398 {
		t.Fatalf("store total = %d, want 398", store.Total())
	}
	if len(cat.fuzzyCalled) != 0 {
		t.Fatalf("fuzzy search called for visible product: %v", cat.fuzzyCalled)
	}
}

func TestBatchedAddsThreadCartState(t *testing.T) {
	cat := &fakeCatalog{listed: []catalog.Product{zinger, pepsi}}
	d, store, ctl := newDispatcher(t, cat)
	ctl.ShowMenu(context.Background(), stage.Filters{Category: "All"})

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "Veg Zinger Burger", "quantity": float64(2)}),
		call("addToCart", map[string]any{"productId": "Pepsi"}),
		call("checkout", nil),
	})
	if len(resp) != 3 {
		t.Fatalf("got %d responses, want 3", len(resp))
	}
	if !strings.Contains(resp[0].Result, "Total: ₹398.") {
		t.Errorf("first add: %q", resp[0].Result)
	}
	if !strings.Contains(resp[1].Result, "2x Veg Zinger Burger, 1x Pepsi") || !strings.Contains(resp[1].Result, "Total: ₹458.") {
		t.Errorf("second add: %q", resp[1].Result)
	}
	if !strings.HasPrefix(resp[2].Result, "Proceeding to checkout. Total: ₹458.") {
		t.Errorf("checkout: %q", resp[2].Result)
	}
	if store.Total() != 458 {
		t.Errorf("store total = %d, want 458", store.Total())
	}
}

func TestAddNormalizesAndToAmpersand(t *testing.T) {
	cat := &fakeCatalog{fuzzy: map[string][]catalog.Product{}}
	d, _, _ := newDispatcher(t, cat)

	d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "rice and gravy"}),
	})
	if len(cat.fuzzyCalled) != 1 || cat.fuzzyCalled[0] != "RICE & GRAVY" {
		t.Fatalf("fuzzy queries = %v, want [RICE & GRAVY]", cat.fuzzyCalled)
	}
}

func TestAddFuzzyDisambiguation(t *testing.T) {
	variants := []catalog.Product{
		{ID: "10", Name: "Zinger Burger", Price: 199},
		{ID: "11", Name: "Zinger Box", Price: 299},
		{ID: "12", Name: "Zinger Tandoori", Price: 249},
	}
	cat := &fakeCatalog{fuzzy: map[string][]catalog.Product{"ZINGER": variants}}
	d, store, _ := newDispatcher(t, cat)

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "zinger"}),
	})
	want := "I found multiple versions: Zinger Burger, Zinger Box, Zinger Tandoori. Please ask the user which one they would like to add."
	if resp[0].Result != want {
		t.Fatalf("result = %q, want %q", resp[0].Result, want)
	}
	if store.Total() != 0 {
		t.Fatalf("ambiguous add mutated cart: total %d", store.Total())
	}
}

func TestAddFuzzyExactNameOverridesAmbiguity(t *testing.T) {
	variants := []catalog.Product{
		{ID: "10", Name: "Zinger Box", Price: 299},
		{ID: "11", Name: "Zinger Tandoori", Price: 249},
		{ID: "12", Name: "Zinger Combo", Price: 349},
		{ID: "13", Name: "Zinger Burger", Price: 199},
		{ID: "14", Name: "Double Zinger", Price: 279},
	}
	cat := &fakeCatalog{fuzzy: map[string][]catalog.Product{"ZINGER BURGER": variants}}
	d, store, _ := newDispatcher(t, cat)

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "zinger burger"}),
	})
	if !strings.HasPrefix(resp[0].Result, "Added Zinger Burger.") {
		t.Fatalf("result = %q", resp[0].Result)
	}
	if store.Total() != 199 {
		t.Fatalf("total = %d, want 199", store.Total())
	}
}

func TestAddFuzzyTopPickAboveBand(t *testing.T) {
	variants := make([]catalog.Product, 5)
	for i := range variants {
		variants[i] = catalog.Product{ID: fmt.Sprintf("1%d", i), Name: fmt.Sprintf("Wing Bucket %d", i), Price: 100 + i}
	}
	cat := &fakeCatalog{fuzzy: map[string][]catalog.Product{"WINGS": variants}}
	d, _, _ := newDispatcher(t, cat)

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "wings"}),
	})
	if !strings.HasPrefix(resp[0].Result, "Added Wing Bucket 0.") {
		t.Fatalf("result = %q", resp[0].Result)
	}
}

func TestAddNotFound(t *testing.T) {
	cat := &fakeCatalog{fuzzy: map[string][]catalog.Product{}}
	d, _, _ := newDispatcher(t, cat)

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "sushi"}),
	})
	if resp[0].Result != `Sorry, I couldn't find a product matching "SUSHI".` {
		t.Fatalf("result = %q", resp[0].Result)
	}
}

func TestAddSearchError(t *testing.T) {
	cat := &fakeCatalog{fuzzyErr: errors.New("service down")}
	d, _, _ := newDispatcher(t, cat)

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("addToCart", map[string]any{"productId": "sushi"}),
	})
	if resp[0].Result != "Error searching for product." {
		t.Fatalf("result = %q", resp[0].Result)
	}
}

func TestRemovePartialAndWhole(t *testing.T) {
	cat := &fakeCatalog{}
	d, store, _ := newDispatcher(t, cat)
	store.Replace(cart.Add(cart.Add(nil, zinger, 3), pepsi, 1))

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("removeFromCart", map[string]any{"productId": "Veg Zinger Burger", "quantity": float64(2)}),
	})
	if resp[0].Result != "Removed veg zinger burger. Total: ₹259." {
		t.Fatalf("result = %q", resp[0].Result)
	}

	resp = d.HandleBatch(context.Background(), []ToolCall{
		call("removeFromCart", map[string]any{"productId": "pepsi"}),
	})
	if resp[0].Result != "Removed pepsi. Total: ₹199." {
		t.Fatalf("result = %q", resp[0].Result)
	}
	items := store.Items()
	if len(items) != 1 || items[0].Quantity != 1 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestRemoveMissIsNotAnError(t *testing.T) {
	cat := &fakeCatalog{}
	d, store, _ := newDispatcher(t, cat)
	store.Replace(cart.Add(nil, pepsi, 1))

	resp := d.HandleBatch(context.Background(), []ToolCall{
		call("removeFromCart", map[string]any{"productId": "burger"}),
	})
	if resp[0].Result != `Nothing to remove for "burger". Total: ₹60.` {
		t.Fatalf("result = %q", resp[0].Result)
	}
	if store.Total() != 60 {
		t.Fatalf("miss mutated cart: total %d", store.Total())
	}
}

func TestClearCart(t *testing.T) {
	cat := &fakeCatalog{}
	d, store, _ := newDispatcher(t, cat)
	store.Replace(cart.Add(nil, zinger, 2))

	resp := d.HandleBatch(context.Background(), []ToolCall{call("clearCart", nil)})
	if resp[0].Result != "Bucket cleared. Total: ₹0." {
		t.Fatalf("result = %q", resp[0].Result)
	}
	if store.Total() != 0 {
		t.Fatalf("total = %d after clear", store.Total())
	}
}

func TestShowCategoryDefaultsToAll(t *testing.T) {
	cat := &fakeCatalog{listed: []catalog.Product{zinger}}
	d, _, ctl := newDispatcher(t, cat)

	resp := d.HandleBatch(context.Background(), []ToolCall{call("showCategory", nil)})
	if resp[0].Result != "Showing All." {
		t.Fatalf("result = %q", resp[0].Result)
	}
	st := ctl.State()
	if st.View != stage.ViewMenuPicker || st.Filters.Category != "All" {
		t.Fatalf("stage = %+v", st)
	}
}

func TestShowCategoryForwardsFilters(t *testing.T) {
	cat := &fakeCatalog{}
	d, _, ctl := newDispatcher(t, cat)

	d.HandleBatch(context.Background(), []ToolCall{
		call("showCategory", map[string]any{"category": "Burger", "type": "veg", "maxPrice": float64(300)}),
	})
	f := ctl.State().Filters
	if f.Category != "Burger" || f.DietType != "veg" || f.MaxPrice != 300 {
		t.Fatalf("filters = %+v", f)
	}
}

func TestShowOffersClearsFilters(t *testing.T) {
	cat := &fakeCatalog{}
	d, _, ctl := newDispatcher(t, cat)
	d.HandleBatch(context.Background(), []ToolCall{
		call("showCategory", map[string]any{"category": "Burger", "type": "veg"}),
	})

	resp := d.HandleBatch(context.Background(), []ToolCall{call("showOffers", nil)})
	if resp[0].Result != "Here are our epic saver deals!" {
		t.Fatalf("result = %q", resp[0].Result)
	}
	st := ctl.State()
	if st.Filters.Category != "epic_saver" || st.Filters.DietType != "" || st.Filters.MaxPrice != 0 {
		t.Fatalf("filters = %+v", st.Filters)
	}
	if st.View != stage.ViewMenuPicker {
		t.Fatalf("view = %s", st.View)
	}
}

func TestCloseMenu(t *testing.T) {
	cat := &fakeCatalog{}
	d, _, ctl := newDispatcher(t, cat)
	d.HandleBatch(context.Background(), []ToolCall{call("showCategory", nil)})

	resp := d.HandleBatch(context.Background(), []ToolCall{call("closeMenu", nil)})
	if resp[0].Result != "Closing the menu." {
		t.Fatalf("result = %q", resp[0].Result)
	}
	if ctl.State().View != stage.ViewIdle {
		t.Fatalf("view = %s", ctl.State().View)
	}
}

func TestCheckoutWithUpsell(t *testing.T) {
	cat := &fakeCatalog{listed: []catalog.Product{
		{ID: "s1", Name: "Epic Saver Box", Price: 999},
		{ID: "s2", Name: "Saver Duo", Price: 480},
	}}
	d, store, ctl := newDispatcher(t, cat)
	store.Replace(cart.Add(cart.Add(nil, zinger, 2), pepsi, 1))

	resp := d.HandleBatch(context.Background(), []ToolCall{call("checkout", nil)})
	want := `Proceeding to checkout. Total: ₹458. Here is your final bill summary. Wait! Your total is ₹458. You can get the "Saver Duo" for just ₹480, which is almost the same! Want to add it instead?`
	if resp[0].Result != want {
		t.Fatalf("result = %q\nwant %q", resp[0].Result, want)
	}
	if ctl.State().View != stage.ViewBill {
		t.Fatalf("view = %s", ctl.State().View)
	}
}

func TestCheckoutNoUpsellOutsideDelta(t *testing.T) {
	cat := &fakeCatalog{listed: []catalog.Product{{ID: "s1", Name: "Epic Saver Box", Price: 999}}}
	d, store, _ := newDispatcher(t, cat)
	store.Replace(cart.Add(nil, pepsi, 1))

	resp := d.HandleBatch(context.Background(), []ToolCall{call("checkout", nil)})
	if resp[0].Result != "Proceeding to checkout. Total: ₹60. Here is your final bill summary." {
		t.Fatalf("result = %q", resp[0].Result)
	}
}

func TestCheckoutDegradesOnSaverFailure(t *testing.T) {
	cat := &fakeCatalog{listErr: errors.New("service down")}
	d, store, ctl := newDispatcher(t, cat)
	store.Replace(cart.Add(nil, pepsi, 1))

	resp := d.HandleBatch(context.Background(), []ToolCall{call("checkout", nil)})
	if resp[0].Result != "Proceeding to checkout. Total: ₹60. Here is your final bill summary." {
		t.Fatalf("result = %q", resp[0].Result)
	}
	if ctl.State().View != stage.ViewBill {
		t.Fatalf("view = %s", ctl.State().View)
	}
}

func TestUnknownToolYieldsOK(t *testing.T) {
	d, _, _ := newDispatcher(t, &fakeCatalog{})
	resp := d.HandleBatch(context.Background(), []ToolCall{call("danceParty", nil)})
	if resp[0].Result != "ok" {
		t.Fatalf("result = %q", resp[0].Result)
	}
}

func TestResponsesPreserveCallIDs(t *testing.T) {
	d, _, _ := newDispatcher(t, &fakeCatalog{})
	calls := []ToolCall{
		{ID: "a", Name: "clearCart"},
		{ID: "b", Name: "closeMenu"},
	}
	resp := d.HandleBatch(context.Background(), calls)
	for i := range calls {
		if resp[i].ID != calls[i].ID || resp[i].Name != calls[i].Name {
			t.Fatalf("response %d = %+v", i, resp[i])
		}
	}
}
