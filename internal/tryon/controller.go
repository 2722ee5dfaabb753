// Package tryon is the try-on session controller.
//
// The controller reconciles resources that load and fail independently (the
// identity, the person and garment inventories, generated results) into one
// consistent State that a UI renders.
//
// CONCURRENCY MODEL:
// All state is owned by a single loop goroutine. Commands (OnSelect,
// OnGenerate, ...) are closures executed on the loop; they validate and
// return an error synchronously. Network calls run in their own goroutines
// and post a completion closure back to the loop, so state is only ever
// touched from one goroutine and needs no locks.
//
// Every network call is tagged with the credential epoch it was issued
// under. Clearing the stored credential is not a network call: it runs on
// the loop itself. Logging out, being rejected (401/403) or resolving again bumps the
// epoch, and completions from an older epoch are dropped. Within one epoch
// completions apply in the order they finish: the last load of a kind wins.
package tryon

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/model"
)

var (
	// ErrStopped is returned by commands sent after Stop.
	ErrStopped = errors.New("tryon: controller stopped")
	// ErrNotStarted is returned by commands sent before Start.
	ErrNotStarted = errors.New("tryon: controller not started")
)

// Authenticator resolves and forgets the session credential.
// *auth.Provider satisfies it.
type Authenticator interface {
	Resolve(ctx context.Context) auth.Resolution
	Clear(ctx context.Context) error
}

// Backend is every backend call the controller makes.
// *backend.Client satisfies it.
type Backend interface {
	PhotoLister
	PhotoUploader
	Generator
}

// Option configures a Controller.
type Option func(*Controller)

// WithImageBase prefixes every image path in State (e.g. the backend URL).
func WithImageBase(base string) Option {
	return func(c *Controller) {
		c.imageBase = base
	}
}

// Controller is one try-on session. Create it with New, then Start it.
type Controller struct {
	authn     Authenticator
	loader    *Loader
	submitter *Submitter
	requestor *Requestor
	logger    *slog.Logger
	imageBase string

	events  chan func()
	quit    chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	tasks     sync.WaitGroup

	state atomic.Pointer[State]

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int

	// Everything below is owned by the loop goroutine.
	epoch       uint64
	inflight    int
	waiters     []chan struct{}
	dirty       bool
	enabled     bool
	resolving   bool
	cred        model.Credential
	identity    *model.Identity
	identityErr error
	loginPrompt bool
	inv         map[model.Kind]*inventory
	selection   *Selection
	results     Results
}

// New creates a stopped controller.
func New(authn Authenticator, be Backend, logger *slog.Logger, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		authn:     authn,
		loader:    NewLoader(be),
		submitter: NewSubmitter(be),
		requestor: NewRequestor(be),
		logger:    logger,
		events:    make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		subs:      make(map[int]func(State)),
		inv: map[model.Kind]*inventory{
			model.KindPerson:  newInventory(StatusIdle),
			model.KindGarment: newInventory(StatusIdle),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.selection = NewSelection(c.recompute)
	c.publish()
	return c
}

// Start runs the loop. Calling it more than once is a no-op.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

// Stop cancels in-flight requests, stops the loop and waits for every
// goroutine the controller started. Calling it more than once is a no-op.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		close(c.quit)
		if c.started.Load() {
			<-c.done
		}
		c.tasks.Wait()
	})
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case ev := <-c.events:
			ev()
			c.flush()
		case <-c.quit:
			return
		}
	}
}

// State returns the latest snapshot. Safe to call from any goroutine.
func (c *Controller) State() State {
	return *c.state.Load()
}

// Subscribe registers fn to receive every new State. fn runs on the loop
// goroutine and must not call back into the controller's commands.
// The returned function unregisters it.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Settle blocks until no request started by the controller is still running.
func (c *Controller) Settle(ctx context.Context) error {
	ch := make(chan struct{})
	err := c.call(ctx, func() error {
		if c.inflight == 0 {
			close(ch)
		} else {
			c.waiters = append(c.waiters, ch)
		}
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// =========================================================================
// COMMANDS
// =========================================================================

// Resolve (re)starts the session: the credential is looked up and, when it
// yields an identity, both inventories load. Anything in flight from before
// is dropped. Session results are kept.
func (c *Controller) Resolve(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.reset()
		c.resolving = true
		c.loginPrompt = false
		for _, k := range model.Kinds {
			c.inv[k].status = StatusIdle
		}
		c.spawn("resolve", func(ctx context.Context) func() {
			res := c.authn.Resolve(ctx)
			return func() { c.applyResolution(res) }
		})
		return nil
	})
}

// OnSelect selects the photo with id from the kind's inventory.
func (c *Controller) OnSelect(ctx context.Context, kind model.Kind, id int64) error {
	return c.call(ctx, func() error {
		inv, err := c.inventory(kind)
		if err != nil {
			return err
		}
		if c.identity == nil {
			return apperror.LoginRequired()
		}
		p, ok := inv.items.Find(id)
		if !ok {
			return apperror.NotFound(kind.Noun()+" photo", strconv.FormatInt(id, 10))
		}
		c.selection.Set(kind, &p)
		return nil
	})
}

// OnUpload uploads a photo of kind and, once it is stored, reloads that
// inventory. Obviously invalid files are rejected here; backend rejections
// show up in State as the kind's UploadError.
func (c *Controller) OnUpload(ctx context.Context, kind model.Kind, filename string, data []byte) error {
	return c.call(ctx, func() error {
		inv, err := c.inventory(kind)
		if err != nil {
			return err
		}
		if !c.cred.Present() {
			return apperror.LoginRequired()
		}
		if err := c.submitter.Check(filename, data); err != nil {
			return err
		}

		inv.uploading++
		inv.uploadErr = nil
		c.dirty = true

		cred := c.cred
		c.spawn("upload "+string(kind), func(ctx context.Context) func() {
			ref, err := c.submitter.Upload(ctx, kind, filename, data, cred)
			return func() { c.applyUpload(kind, ref, err) }
		})
		return nil
	})
}

// OnGenerate submits the current selection for try-on.
func (c *Controller) OnGenerate(ctx context.Context) error {
	return c.call(ctx, func() error {
		if c.identity == nil {
			return apperror.LoginRequired()
		}
		if c.requestor.Phase() == PhasePending {
			return apperror.Conflict("A try-on is already being generated.")
		}
		if !c.selection.IsComplete() {
			return apperror.ValidationFailed("selection", textSelectionEmpty)
		}

		req := model.GenerationRequest{
			UserID:        c.identity.ID,
			PersonPhotoID: c.selection.Get(model.KindPerson).ID,
			ClothPhotoID:  c.selection.Get(model.KindGarment).ID,
		}
		if err := c.requestor.Begin(); err != nil {
			return err
		}
		c.recompute()

		cred := c.cred
		c.logger.Info("generating try-on",
			slog.Int64("person_photo_id", req.PersonPhotoID),
			slog.Int64("cloth_photo_id", req.ClothPhotoID),
		)
		c.spawn("generate", func(ctx context.Context) func() {
			ref, err := c.requestor.Generate(ctx, cred, req)
			return func() { c.applyGeneration(ref, err) }
		})
		return nil
	})
}

// Reload fetches the kind's inventory again.
func (c *Controller) Reload(ctx context.Context, kind model.Kind) error {
	return c.call(ctx, func() error {
		if _, err := c.inventory(kind); err != nil {
			return err
		}
		if !c.cred.Present() {
			return apperror.LoginRequired()
		}
		c.startLoad(kind)
		return nil
	})
}

// Logout forgets the credential and returns to the logged-out state.
func (c *Controller) Logout(ctx context.Context) error {
	return c.call(ctx, func() error {
		c.downgrade(nil)
		return nil
	})
}

// =========================================================================
// LOOP INTERNALS
// =========================================================================

// call runs fn on the loop and returns its error.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	errc := make(chan error, 1)
	run := func() {
		err := fn()
		// Publish before replying so the caller sees its own change.
		c.flush()
		errc <- err
	}
	select {
	case c.events <- run:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs work off the loop. The closure work returns is applied on the
// loop, unless the epoch moved on while work was running.
func (c *Controller) spawn(name string, work func(ctx context.Context) func()) {
	epoch := c.epoch
	c.inflight++
	c.tasks.Add(1)

	go func() {
		defer c.tasks.Done()
		apply := work(c.ctx)

		select {
		case c.events <- func() {
			c.inflight--
			if epoch != c.epoch {
				c.logger.Debug("dropping stale completion", slog.String("task", name))
			} else if apply != nil {
				apply()
			}
			c.notifySettled()
		}:
		case <-c.quit:
		}
	}()
}

func (c *Controller) notifySettled() {
	if c.inflight > 0 {
		return
	}
	for _, w := range c.waiters {
		close(w)
	}
	c.waiters = nil
}

func (c *Controller) inventory(kind model.Kind) (*inventory, error) {
	inv, ok := c.inv[kind]
	if !ok {
		return nil, apperror.ValidationFailed("kind", "unknown photo kind "+strconv.Quote(string(kind)))
	}
	return inv, nil
}

// reset returns to the state of a session that has not resolved a
// credential yet, and invalidates everything in flight.
func (c *Controller) reset() {
	c.epoch++
	c.cred = ""
	c.identity = nil
	c.identityErr = nil
	c.resolving = false
	for _, k := range model.Kinds {
		c.inv[k] = newInventory(StatusLoginRequired)
	}
	c.requestor.Reset()
	c.selection.Clear()
}

// downgrade is the single response to a rejected credential and to logout:
// the session ends up exactly as a fresh visit without a credential would.
func (c *Controller) downgrade(cause error) {
	if cause != nil {
		c.logger.Info("credential rejected, logging out", slog.String("error", cause.Error()))
	} else {
		c.logger.Info("logging out")
	}
	c.reset()
	c.loginPrompt = true
	// The store is local. Clearing it here, on the loop, orders the clear
	// before any Resolve issued afterwards.
	if err := c.authn.Clear(c.ctx); err != nil {
		c.logger.Warn("failed to clear stored credential", slog.String("error", err.Error()))
	}
}

func (c *Controller) applyResolution(res auth.Resolution) {
	c.resolving = false
	c.cred = res.Credential
	c.identity = res.Identity
	c.identityErr = res.Err
	c.loginPrompt = !res.Credential.Present()
	c.dirty = true

	if res.Identity == nil {
		// With a credential the backend was unreachable and the credential
		// is kept; retrying is another Resolve.
		status := StatusLoginRequired
		if res.Credential.Present() {
			status = StatusIdle
		}
		for _, k := range model.Kinds {
			c.inv[k].status = status
		}
		c.recompute()
		return
	}

	for _, k := range model.Kinds {
		c.startLoad(k)
	}
	c.recompute()
}

func (c *Controller) startLoad(kind model.Kind) {
	c.inv[kind].loads++
	c.dirty = true

	cred := c.cred
	c.spawn("load "+string(kind), func(ctx context.Context) func() {
		items, err := c.loader.Load(ctx, kind, cred)
		return func() { c.applyLoad(kind, items, err) }
	})
}

// applyLoad is the serialization point for a kind: the inventory is replaced
// wholesale and the selection derived from it in the same step.
func (c *Controller) applyLoad(kind model.Kind, items model.Inventory, err error) {
	inv := c.inv[kind]
	inv.loads--
	c.dirty = true

	switch {
	case apperror.IsUnauthorized(err):
		c.downgrade(err)
	case err != nil:
		c.logger.Warn("inventory load failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		inv.status = StatusFailed
		inv.err = err
	default:
		inv.items = items
		inv.status = StatusLoaded
		inv.err = nil
		c.selection.Set(kind, DeriveSelection(c.selection.Get(kind), items))
	}
}

func (c *Controller) applyUpload(kind model.Kind, ref model.PhotoRef, err error) {
	inv := c.inv[kind]
	inv.uploading--
	c.dirty = true

	switch {
	case apperror.IsUnauthorized(err):
		c.downgrade(err)
	case err != nil:
		c.logger.Warn("upload failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		inv.uploadErr = err
	default:
		c.logger.Info("photo uploaded",
			slog.String("kind", string(kind)),
			slog.Int64("photo_id", ref.ID),
		)
		inv.uploadErr = nil
		c.startLoad(kind)
	}
}

func (c *Controller) applyGeneration(ref model.ResultRef, err error) {
	if apperror.IsUnauthorized(err) {
		c.downgrade(err)
		return
	}
	if err != nil {
		c.logger.Warn("generation failed", slog.String("error", err.Error()))
	} else {
		c.results.Append(ref)
		c.logger.Info("try-on generated", slog.String("result", string(ref)))
	}
	c.requestor.Finish(ref, err)
	c.recompute()
}

// recompute is the selection's change hook. It also runs after every other
// transition that affects the generate trigger: identity, generation phase.
func (c *Controller) recompute() {
	c.enabled = c.identity != nil &&
		c.selection.IsComplete() &&
		c.requestor.Phase() != PhasePending
	c.dirty = true
}

func (c *Controller) flush() {
	if c.dirty {
		c.dirty = false
		c.publish()
	}
}

// publish builds a new snapshot and hands it to subscribers.
func (c *Controller) publish() {
	s := &State{
		Resolving:   c.resolving,
		Identity:    copyIdentity(c.identity),
		LoginPrompt: c.loginPrompt,
		Person:      c.inv[model.KindPerson].view(model.KindPerson, c.selection.Get(model.KindPerson), c.imageBase),
		Garment:     c.inv[model.KindGarment].view(model.KindGarment, c.selection.Get(model.KindGarment), c.imageBase),
		Generation:  generationView(c.requestor, c.imageBase),
		CanGenerate: c.enabled,
		Results:     c.results.All(),
	}
	if c.identityErr != nil {
		s.IdentityError = apperror.Message(c.identityErr)
	}
	if len(s.Results) == 0 {
		s.ResultsText = TextNoResults
	}
	c.state.Store(s)

	c.subMu.Lock()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(*s)
	}
}

func copyIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
