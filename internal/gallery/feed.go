// Package gallery pages through the public garment catalog.
//
// The catalog (GET /images/shop-clothes) is fetched once, on the first call
// to Next, and then served page by page. Like the shop page it wraps around
// when it reaches the end, so scrolling never runs dry. Nothing is fetched
// until a caller asks for a page.
package gallery

import (
	"context"
	"fmt"
	"sync"

	"github.com/sakif/tryon-studio/internal/model"
)

const (
	DefaultPageSize = 12

	TextEmpty  = "No items to display."
	TextFailed = "Failed to load items."

	// TextBrowseOnly tells users that catalog garments cannot be picked for
	// a try-on: only the user's own cloth photos can.
	TextBrowseOnly = "Shop garments are for browsing only. To try one on, upload a photo of it as a cloth image."
)

// ShopLister returns the public catalog. *backend.Client satisfies it.
type ShopLister interface {
	ShopClothes(ctx context.Context) ([]model.PhotoRef, error)
}

// Item is one catalog entry ready to display.
type Item struct {
	model.PhotoRef
	ImageURL string `json:"image_url"`
	Title    string `json:"title"`
}

// Page is one batch of items. Round counts how many times the catalog has
// wrapped before this page started.
type Page struct {
	Items []Item `json:"items"`
	Round int    `json:"round"`
	Total int    `json:"total"`
	Text  string `json:"text,omitempty"`
}

// Feed is safe for concurrent use.
type Feed struct {
	src       ShopLister
	size      int
	imageBase string

	mu      sync.Mutex
	catalog []model.PhotoRef
	loaded  bool
	next    int
	round   int
}

// NewFeed returns a feed of pageSize items per page (DefaultPageSize when
// pageSize <= 0). imageBase prefixes image paths.
func NewFeed(src ShopLister, pageSize int, imageBase string) *Feed {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Feed{src: src, size: pageSize, imageBase: imageBase}
}

// Next returns the next page. The first call fetches the catalog; a failed
// fetch is retried on the following call.
func (f *Feed) Next(ctx context.Context) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.loaded {
		items, err := f.src.ShopClothes(ctx)
		if err != nil {
			return Page{Text: TextFailed}, fmt.Errorf("gallery: loading catalog: %w", err)
		}
		f.catalog = items
		f.loaded = true
	}

	if len(f.catalog) == 0 {
		return Page{Items: []Item{}, Text: TextEmpty}, nil
	}

	page := Page{
		Items: make([]Item, 0, f.size),
		Round: f.round,
		Total: len(f.catalog),
	}
	for len(page.Items) < f.size {
		p := f.catalog[f.next]
		page.Items = append(page.Items, Item{
			PhotoRef: p,
			ImageURL: f.imageBase + p.ImagePath(model.KindGarment),
			Title:    fmt.Sprintf("Stylish Cloth #%d", p.ID),
		})
		f.next++
		if f.next == len(f.catalog) {
			f.next = 0
			f.round++
			// A page never shows the same item twice.
			if len(page.Items) >= len(f.catalog) {
				break
			}
		}
	}
	return page, nil
}

// Reset forgets the catalog; the next call to Next fetches it again.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = nil
	f.loaded = false
	f.next = 0
	f.round = 0
}
