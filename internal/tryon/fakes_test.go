package tryon_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/tryon"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeAuth resolves to a fixed Resolution and records Clear calls.
type fakeAuth struct {
	mu      sync.Mutex
	res     auth.Resolution
	cleared int
}

func loggedIn(id *model.Identity, cred model.Credential) *fakeAuth {
	return &fakeAuth{res: auth.Resolution{Identity: id, Credential: cred}}
}

func loggedOut() *fakeAuth {
	return &fakeAuth{}
}

func (f *fakeAuth) Resolve(ctx context.Context) auth.Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.res
}

func (f *fakeAuth) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.res = auth.Resolution{}
	return nil
}

func (f *fakeAuth) set(res auth.Resolution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res = res
}

func (f *fakeAuth) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// fakeBackend is an in-memory backend. Responses are read when a call
// returns, not when it starts, so a test can change them while a gated call
// is waiting.
//
// Gating: after gate("list person"), every ListPhotos(person) call blocks
// until the test releases it by arrival index.
type fakeBackend struct {
	mu          sync.Mutex
	inventories map[model.Kind]model.Inventory
	listErr     map[model.Kind]error
	uploadErr   error
	tryonErr    error
	results     []model.ResultRef
	nextID      int64
	calls       map[string]int

	gated   map[string]bool
	waiting map[string][]chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		inventories: map[model.Kind]model.Inventory{
			model.KindPerson:  {},
			model.KindGarment: {},
		},
		listErr: make(map[model.Kind]error),
		nextID:  100,
		calls:   make(map[string]int),
		gated:   make(map[string]bool),
		waiting: make(map[string][]chan struct{}),
	}
}

func (f *fakeBackend) setInventory(kind model.Kind, photos ...model.PhotoRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inventories[kind] = append(model.Inventory{}, photos...)
}

func (f *fakeBackend) setListErr(kind model.Kind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr[kind] = err
}

func (f *fakeBackend) setUploadErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErr = err
}

func (f *fakeBackend) setTryOn(err error, results ...model.ResultRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tryonErr = err
	f.results = results
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) gate(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gated[op] = true
}

// awaitArrival blocks until n gated calls to op have started.
func (f *fakeBackend) awaitArrival(t *testing.T, op string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.waiting[op]) >= n
	}, 2*time.Second, time.Millisecond, "waiting for %d gated %q calls", n, op)
}

// release lets the i-th gated call to op (in arrival order) return.
func (f *fakeBackend) release(t *testing.T, op string, i int) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.waiting[op]) {
		t.Fatalf("no gated call #%d for %q (have %d)", i, op, len(f.waiting[op]))
	}
	close(f.waiting[op][i])
}

func (f *fakeBackend) hold(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	if !f.gated[op] {
		f.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	f.waiting[op] = append(f.waiting[op], ch)
	f.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return apperror.Network(op, ctx.Err())
	}
}

func (f *fakeBackend) ListPhotos(ctx context.Context, kind model.Kind, cred model.Credential) (model.Inventory, error) {
	if err := f.hold(ctx, "list "+string(kind)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[kind]; err != nil {
		return nil, err
	}
	return append(model.Inventory{}, f.inventories[kind]...), nil
}

func (f *fakeBackend) Upload(ctx context.Context, kind model.Kind, cred model.Credential, filename string, data []byte) (model.PhotoRef, error) {
	if err := f.hold(ctx, "upload "+string(kind)); err != nil {
		return model.PhotoRef{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return model.PhotoRef{}, f.uploadErr
	}
	p := model.PhotoRef{ID: f.nextID, Filename: filename}
	f.nextID++
	f.inventories[kind] = append(append(model.Inventory{}, f.inventories[kind]...), p)
	return p, nil
}

func (f *fakeBackend) TryOn(ctx context.Context, cred model.Credential, req model.GenerationRequest) (model.ResultRef, error) {
	if err := f.hold(ctx, "tryon"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tryonErr != nil {
		return "", f.tryonErr
	}
	if len(f.results) > 0 {
		r := f.results[0]
		f.results = f.results[1:]
		return r, nil
	}
	return model.ResultRef(fmt.Sprintf("result_%d_%d.png", req.PersonPhotoID, req.ClothPhotoID)), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startController creates, starts and registers cleanup for a controller.
func startController(t *testing.T, authn tryon.Authenticator, be tryon.Backend, opts ...tryon.Option) *tryon.Controller {
	t.Helper()
	c := tryon.New(authn, be, discardLogger(), opts...)
	c.Start()
	t.Cleanup(c.Stop)
	return c
}

func settle(t *testing.T, c *tryon.Controller) tryon.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Settle(ctx))
	return c.State()
}

func resolve(t *testing.T, c *tryon.Controller) tryon.State {
	t.Helper()
	require.NoError(t, c.Resolve(context.Background()))
	return settle(t, c)
}

// checkInvariants verifies the properties every published State must hold.
func checkInvariants(s tryon.State) error {
	want := s.Identity != nil &&
		s.Person.Selected != nil &&
		s.Garment.Selected != nil &&
		s.Generation.Phase != tryon.PhasePending
	if s.CanGenerate != want {
		return fmt.Errorf("CanGenerate = %v, want %v", s.CanGenerate, want)
	}
	for _, v := range []tryon.KindView{s.Person, s.Garment} {
		if v.Inventory == nil {
			return fmt.Errorf("%s inventory is nil", v.Kind)
		}
		if v.Selected != nil && !v.Inventory.Contains(v.Selected.ID) {
			return fmt.Errorf("%s selection %d not in inventory %v", v.Kind, v.Selected.ID, v.Inventory)
		}
		if s.Identity == nil && v.Selected != nil {
			return fmt.Errorf("%s selection without identity", v.Kind)
		}
	}
	return nil
}

// recorder collects every published State and any invariant violation.
type recorder struct {
	mu         sync.Mutex
	states     []tryon.State
	violations []error
}

func record(c *tryon.Controller) *recorder {
	r := &recorder{}
	c.Subscribe(func(s tryon.State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
		if err := checkInvariants(s); err != nil {
			r.violations = append(r.violations, err)
		}
	})
	return r
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.violations...)
}

func (r *recorder) all() []tryon.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tryon.State(nil), r.states...)
}

var (
	mina = &model.Identity{ID: 7, DisplayName: "Mina"}
	p1   = model.PhotoRef{ID: 1, Filename: "p1.jpg"}
	p2   = model.PhotoRef{ID: 2, Filename: "p2.jpg"}
	p3   = model.PhotoRef{ID: 3, Filename: "p3.jpg"}
	c5   = model.PhotoRef{ID: 5, Filename: "c5.jpg"}
	c6   = model.PhotoRef{ID: 6, Filename: "c6.jpg"}
)
