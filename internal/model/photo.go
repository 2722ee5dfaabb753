package model

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two photo inventories a user owns.
type Kind string

const (
	KindPerson  Kind = "person"
	KindGarment Kind = "garment"
)

// Kinds lists every inventory kind in display order.
var Kinds = []Kind{KindPerson, KindGarment}

// ParseKind converts a user-supplied name into a Kind. Both the client's own
// names and the backend's words ("cloth", "clothes", "persons") are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "persons":
		return KindPerson, nil
	case "garment", "garments", "cloth", "clothes":
		return KindGarment, nil
	}
	return "", fmt.Errorf("model: unknown photo kind %q", s)
}

// ListPath is the backend endpoint listing the user's photos of this kind.
func (k Kind) ListPath() string {
	if k == KindGarment {
		return "/images/my-clothes"
	}
	return "/images/persons"
}

// UploadPath is the backend endpoint accepting a new photo of this kind.
func (k Kind) UploadPath() string {
	if k == KindGarment {
		return "/upload/cloth"
	}
	return "/upload/person"
}

// Category is the image category segment used in /images/{category}/{filename}.
func (k Kind) Category() string {
	if k == KindGarment {
		return "clothes"
	}
	return "persons"
}

// Noun is the word the UI uses for this kind ("person", "cloth").
func (k Kind) Noun() string {
	if k == KindGarment {
		return "cloth"
	}
	return "person"
}

// PhotoRef identifies one uploaded photo. It is issued by the backend and
// never modified by the client. Pass it by value.
type PhotoRef struct {
	ID       int64  `json:"id"`
	Filename string `json:"filename"`
}

// ImagePath returns the public path of this photo's bytes for the given kind.
func (p PhotoRef) ImagePath(kind Kind) string {
	return "/images/" + kind.Category() + "/" + p.Filename
}

// Inventory is the ordered list of one kind of photos owned by the user.
// It is always replaced wholesale; an empty inventory is an empty, non-nil slice.
type Inventory []PhotoRef

// Find returns the photo with the given id, if present.
func (inv Inventory) Find(id int64) (PhotoRef, bool) {
	for _, p := range inv {
		if p.ID == id {
			return p, true
		}
	}
	return PhotoRef{}, false
}

// Contains reports whether a photo with the given id is in the inventory.
func (inv Inventory) Contains(id int64) bool {
	_, ok := inv.Find(id)
	return ok
}
