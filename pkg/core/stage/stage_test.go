package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/bucketworks/kiosk/pkg/core/catalog"
)

type fakeLister struct {
	products []catalog.Product
	err      error
	lastQ    catalog.ListQuery
}

func (f *fakeLister) List(_ context.Context, q catalog.ListQuery) ([]catalog.Product, error) {
	f.lastQ = q
	return f.products, f.err
}

func TestShowMenuRefreshesProducts(t *testing.T) {
	lister := &fakeLister{products: []catalog.Product{{ID: "p1", Name: "Veg Zinger"}}}
	c := NewController(lister)

	products, err := c.ShowMenu(context.Background(), Filters{Category: "burgers", DietType: "veg", MaxPrice: 300})
	if err != nil {
		t.Fatalf("ShowMenu: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1", len(products))
	}
	if lister.lastQ.Category != "burgers" || lister.lastQ.DietType != "veg" || lister.lastQ.MaxPrice != 300 {
		t.Fatalf("filters not forwarded: %+v", lister.lastQ)
	}

	st := c.State()
	if st.View != ViewMenuPicker {
		t.Errorf("view = %s, want MENU_PICKER", st.View)
	}
	if st.Filters.Category != "burgers" {
		t.Errorf("category = %q", st.Filters.Category)
	}
}

func TestShowMenuFailureStillSwitchesView(t *testing.T) {
	lister := &fakeLister{err: errors.New("service down")}
	c := NewController(lister)

	_, err := c.ShowMenu(context.Background(), Filters{Category: "burgers"})
	if err == nil {
		t.Fatal("expected error")
	}
	st := c.State()
	if st.View != ViewMenuPicker {
		t.Errorf("view = %s, want MENU_PICKER", st.View)
	}
	if len(st.Products) != 0 {
		t.Errorf("stale products survived failed refresh: %+v", st.Products)
	}
}

func TestCloseMenuResets(t *testing.T) {
	lister := &fakeLister{products: []catalog.Product{{ID: "p1"}}}
	c := NewController(lister)
	c.ShowMenu(context.Background(), Filters{Category: "burgers"})

	c.CloseMenu()
	st := c.State()
	if st.View != ViewIdle || st.Filters.Category != "" || len(st.Products) != 0 {
		t.Fatalf("close did not reset: %+v", st)
	}
}

func TestOnChangeFires(t *testing.T) {
	c := NewController(nil)
	var views []View
	c.OnChange = func(s State) { views = append(views, s.View) }

	c.SetView(ViewCart)
	c.SetView(ViewBill)
	c.CloseMenu()

	want := []View{ViewCart, ViewBill, ViewIdle}
	if len(views) != len(want) {
		t.Fatalf("got %d notifications, want %d", len(views), len(want))
	}
	for i := range want {
		if views[i] != want[i] {
			t.Errorf("notification %d = %s, want %s", i, views[i], want[i])
		}
	}
}
