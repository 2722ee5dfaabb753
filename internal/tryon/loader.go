package tryon

import (
	"context"
	"fmt"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// PhotoLister fetches one kind of photo inventory. *backend.Client satisfies it.
type PhotoLister interface {
	ListPhotos(ctx context.Context, kind model.Kind, cred model.Credential) (model.Inventory, error)
}

// Loader fetches inventories. It keeps no state: replacing the inventory and
// deriving the selection happen on the controller loop when the load returns.
type Loader struct {
	lister PhotoLister
}

func NewLoader(lister PhotoLister) *Loader {
	return &Loader{lister: lister}
}

// Load returns the user's photos of kind. Without a credential it returns an
// empty inventory and apperror.ErrLoginRequired without touching the network.
// The returned inventory is never nil.
func (l *Loader) Load(ctx context.Context, kind model.Kind, cred model.Credential) (model.Inventory, error) {
	if !cred.Present() {
		return model.Inventory{}, apperror.LoginRequired()
	}
	inv, err := l.lister.ListPhotos(ctx, kind, cred)
	if err != nil {
		return model.Inventory{}, fmt.Errorf("tryon: load %s inventory: %w", kind, err)
	}
	if inv == nil {
		inv = model.Inventory{}
	}
	return inv, nil
}
