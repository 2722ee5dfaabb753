package tryon

import "github.com/sakif/tryon-studio/internal/model"

// Selection holds the chosen photo per kind. It is owned by the controller
// loop and is not safe for concurrent use.
//
// Every mutation calls onChange before returning, so anything derived from
// the selection (the generate button) is recomputed in the same step as the
// click that changed it.
type Selection struct {
	person   *model.PhotoRef
	garment  *model.PhotoRef
	onChange func()
}

// NewSelection returns an empty selection. onChange may be nil.
func NewSelection(onChange func()) *Selection {
	return &Selection{onChange: onChange}
}

// Set replaces the photo for kind. A nil ref empties the slot.
func (s *Selection) Set(kind model.Kind, ref *model.PhotoRef) {
	if ref != nil {
		cp := *ref
		ref = &cp
	}
	switch kind {
	case model.KindPerson:
		s.person = ref
	case model.KindGarment:
		s.garment = ref
	default:
		return
	}
	s.notify()
}

// Get returns a copy of the photo selected for kind, or nil.
func (s *Selection) Get(kind model.Kind) *model.PhotoRef {
	var ref *model.PhotoRef
	switch kind {
	case model.KindPerson:
		ref = s.person
	case model.KindGarment:
		ref = s.garment
	}
	if ref == nil {
		return nil
	}
	cp := *ref
	return &cp
}

// IsComplete reports whether both slots are filled.
func (s *Selection) IsComplete() bool {
	return s.person != nil && s.garment != nil
}

// Clear empties both slots with a single notification.
func (s *Selection) Clear() {
	s.person = nil
	s.garment = nil
	s.notify()
}

func (s *Selection) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// DeriveSelection picks the selection for a freshly loaded inventory: the
// previous choice if its id is still present, else the first photo, else nil.
// The result always references an element of inv.
func DeriveSelection(prev *model.PhotoRef, inv model.Inventory) *model.PhotoRef {
	if len(inv) == 0 {
		return nil
	}
	if prev != nil {
		if p, ok := inv.Find(prev.ID); ok {
			return &p
		}
	}
	first := inv[0]
	return &first
}
