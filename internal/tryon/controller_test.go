package tryon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/auth"
	"github.com/sakif/tryon-studio/internal/model"
	"github.com/sakif/tryon-studio/internal/tryon"
)

var errRefused = errors.New("connection refused")

// =========================================================================
// SCENARIOS
// =========================================================================

func TestEmptyInventoriesShowPlaceholders(t *testing.T) {
	c := startController(t, loggedIn(mina, "tok"), newFakeBackend())

	s := resolve(t, c)

	require.True(t, s.Authenticated())
	assert.False(t, s.CanGenerate)
	assert.Equal(t, tryon.StatusLoaded, s.Person.Status)
	assert.Equal(t, tryon.StatusLoaded, s.Garment.Status)
	assert.Empty(t, s.Person.Inventory)
	assert.NotNil(t, s.Person.Inventory)
	assert.Nil(t, s.Person.Selected)
	assert.Equal(t, "Upload a person image", s.Person.Placeholder)
	assert.Equal(t, "Upload a cloth image", s.Garment.Placeholder)
	assert.Equal(t, "No results generated in this session yet.", s.ResultsText)
}

func TestBothLoadsAutoSelectFirst(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	c := startController(t, loggedIn(mina, "tok"), be)

	s := resolve(t, c)

	require.NotNil(t, s.Person.Selected)
	require.NotNil(t, s.Garment.Selected)
	assert.Equal(t, int64(1), s.Person.Selected.ID)
	assert.Equal(t, int64(5), s.Garment.Selected.ID)
	assert.True(t, s.CanGenerate)
	assert.Equal(t, "/images/persons/p1.jpg", s.Person.ImageURL)
	assert.Equal(t, "/images/clothes/c5.jpg", s.Garment.ImageURL)
	assert.Empty(t, s.Person.Placeholder)
}

func TestGenerationAppendsResult(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(nil, "r9.png")
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	require.NoError(t, c.OnGenerate(context.Background()))
	s := settle(t, c)

	assert.Equal(t, []model.ResultRef{"r9.png"}, s.Results)
	assert.Equal(t, tryon.PhaseSucceeded, s.Generation.Phase)
	assert.Equal(t, "/images/results/r9.png", s.Generation.ImageURL)
	assert.Equal(t, []string{"/images/results/r9.png"}, s.ResultURLs(""))
	assert.Empty(t, s.ResultsText)
	assert.True(t, s.CanGenerate, "trigger is enabled again after success")
}

func TestUnauthorizedGenerationDowngrades(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(apperror.Unauthorized("Token expired"))
	authn := loggedIn(mina, "tok")
	c := startController(t, authn, be)
	resolve(t, c)

	require.NoError(t, c.OnGenerate(context.Background()))
	s := settle(t, c)

	assert.Nil(t, s.Identity)
	assert.True(t, s.LoginPrompt)
	assert.False(t, s.CanGenerate)
	assert.Nil(t, s.Person.Selected)
	assert.Nil(t, s.Garment.Selected)
	assert.Empty(t, s.Person.Inventory)
	assert.Empty(t, s.Garment.Inventory)
	assert.Equal(t, tryon.PhaseIdle, s.Generation.Phase)
	assert.Equal(t, "Please log in to use.", s.Person.Message)
	assert.Equal(t, 1, authn.clearCount(), "stored credential is cleared")

	// Further authenticated commands are refused without a request.
	assert.ErrorIs(t, c.OnGenerate(context.Background()), apperror.ErrLoginRequired)
	assert.ErrorIs(t, c.Reload(context.Background(), model.KindPerson), apperror.ErrLoginRequired)
	assert.Equal(t, 1, be.count("tryon"))
}

// =========================================================================
// DOWNGRADE
// =========================================================================

// freshUnauthenticated is the state of a session resolved with no credential.
func freshUnauthenticated(t *testing.T) tryon.State {
	t.Helper()
	c := startController(t, loggedOut(), newFakeBackend())
	return resolve(t, c)
}

func TestDowngradeMatchesFreshState(t *testing.T) {
	want := freshUnauthenticated(t)
	require.True(t, want.LoginPrompt)
	require.Equal(t, tryon.StatusLoginRequired, want.Person.Status)

	tests := []struct {
		name  string
		setup func(t *testing.T, c *tryon.Controller, be *fakeBackend)
		fail  func(be *fakeBackend)
		then  func(t *testing.T, c *tryon.Controller)
	}{
		{
			name:  "401 on person reload",
			setup: func(t *testing.T, c *tryon.Controller, be *fakeBackend) {},
			fail:  func(be *fakeBackend) { be.setListErr(model.KindPerson, apperror.Unauthorized("")) },
			then: func(t *testing.T, c *tryon.Controller) {
				require.NoError(t, c.Reload(context.Background(), model.KindPerson))
			},
		},
		{
			name:  "403 on upload",
			setup: func(t *testing.T, c *tryon.Controller, be *fakeBackend) {},
			fail:  func(be *fakeBackend) { be.setUploadErr(apperror.Unauthorized("Inactive user")) },
			then: func(t *testing.T, c *tryon.Controller) {
				require.NoError(t, c.OnUpload(context.Background(), model.KindGarment, "x.png", []byte("png")))
			},
		},
		{
			name: "401 on generate after a failed generation",
			setup: func(t *testing.T, c *tryon.Controller, be *fakeBackend) {
				be.setTryOn(apperror.GenerationFailed("VTON process failed"))
				require.NoError(t, c.OnGenerate(context.Background()))
				settle(t, c)
			},
			fail: func(be *fakeBackend) { be.setTryOn(apperror.Unauthorized("")) },
			then: func(t *testing.T, c *tryon.Controller) {
				require.NoError(t, c.OnGenerate(context.Background()))
			},
		},
		{
			name:  "logout",
			setup: func(t *testing.T, c *tryon.Controller, be *fakeBackend) {},
			fail:  func(be *fakeBackend) {},
			then: func(t *testing.T, c *tryon.Controller) {
				require.NoError(t, c.Logout(context.Background()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := newFakeBackend()
			be.setInventory(model.KindPerson, p1, p2)
			be.setInventory(model.KindGarment, c5, c6)
			c := startController(t, loggedIn(mina, "tok"), be)
			resolve(t, c)
			require.NoError(t, c.OnSelect(context.Background(), model.KindPerson, 2))
			tt.setup(t, c, be)

			tt.fail(be)
			tt.then(t, c)
			got := settle(t, c)

			got.Results, want.Results = nil, nil
			got.ResultsText, want.ResultsText = "", ""
			assert.Equal(t, want, got)

			// A second downgrade changes nothing.
			require.NoError(t, c.Logout(context.Background()))
			again := settle(t, c)
			again.Results, again.ResultsText = nil, ""
			assert.Equal(t, got, again)
		})
	}
}

func TestDowngradeKeepsSessionResults(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(nil, "r1.png")
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)
	require.NoError(t, c.OnGenerate(context.Background()))
	settle(t, c)

	require.NoError(t, c.Logout(context.Background()))
	s := settle(t, c)

	assert.Equal(t, []model.ResultRef{"r1.png"}, s.Results)
}

func TestStaleCompletionAfterLogoutIsDropped(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(nil, "late.png")
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	be.gate("tryon")
	require.NoError(t, c.OnGenerate(context.Background()))
	be.awaitArrival(t, "tryon", 1)
	assert.Equal(t, tryon.PhasePending, c.State().Generation.Phase)

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, tryon.PhaseIdle, c.State().Generation.Phase, "logout never leaves a stuck generating state")

	be.release(t, "tryon", 0)
	s := settle(t, c)

	assert.Empty(t, s.Results)
	assert.Equal(t, tryon.PhaseIdle, s.Generation.Phase)
	assert.Nil(t, s.Identity)
}

func TestReloginDropsOldSessionLoads(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	authn := loggedIn(mina, "old")
	c := startController(t, authn, be)
	resolve(t, c)

	be.gate("list person")
	require.NoError(t, c.Reload(context.Background(), model.KindPerson))
	be.awaitArrival(t, "list person", 1)

	// Logging in as someone else while the old load is in flight.
	other := &model.Identity{ID: 8, DisplayName: "Noor"}
	authn.set(auth.Resolution{Identity: other, Credential: "new"})
	be.setInventory(model.KindPerson, p3)
	require.NoError(t, c.Resolve(context.Background()))
	be.awaitArrival(t, "list person", 2)

	be.release(t, "list person", 1)
	require.Eventually(t, func() bool {
		return c.State().Person.Status == tryon.StatusLoaded
	}, 2*time.Second, 5*time.Millisecond)

	be.setInventory(model.KindPerson, p1)
	be.release(t, "list person", 0)
	s := settle(t, c)

	assert.Equal(t, int64(8), s.Identity.ID)
	assert.Equal(t, model.Inventory{p3}, s.Person.Inventory, "completion from the old credential is ignored")
}

// =========================================================================
// ORDERING AND SELECTION STABILITY
// =========================================================================

func TestLoadsCompleteInEitherOrder(t *testing.T) {
	orders := map[string][]string{
		"person first":  {"list person", "list garment"},
		"garment first": {"list garment", "list person"},
	}

	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			be := newFakeBackend()
			be.setInventory(model.KindPerson, p1)
			be.setInventory(model.KindGarment, c5)
			be.gate("list person")
			be.gate("list garment")
			c := startController(t, loggedIn(mina, "tok"), be)
			rec := record(c)

			require.NoError(t, c.Resolve(context.Background()))
			be.awaitArrival(t, "list person", 1)
			be.awaitArrival(t, "list garment", 1)

			be.release(t, order[0], 0)
			require.Eventually(t, func() bool {
				s := c.State()
				return s.Person.Status == tryon.StatusLoaded || s.Garment.Status == tryon.StatusLoaded
			}, 2*time.Second, 5*time.Millisecond)
			assert.False(t, c.State().CanGenerate, "one inventory is not enough")

			be.release(t, order[1], 0)
			s := settle(t, c)

			assert.True(t, s.CanGenerate)
			assert.Empty(t, rec.errors())
		})
	}
}

func TestUploadPreservesSelectionWhenStillPresent(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1, p2)
	be.setInventory(model.KindGarment, c5)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)
	require.NoError(t, c.OnSelect(context.Background(), model.KindPerson, 2))

	require.NoError(t, c.OnUpload(context.Background(), model.KindPerson, "me.png", []byte("png")))
	s := settle(t, c)

	assert.Len(t, s.Person.Inventory, 3)
	require.NotNil(t, s.Person.Selected)
	assert.Equal(t, int64(2), s.Person.Selected.ID)
	assert.Equal(t, 2, be.count("list person"), "upload success reloads the inventory")
	assert.Equal(t, 1, be.count("list garment"), "the other kind is untouched")
}

func TestReloadFallsBackToFirstWhenSelectionGone(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1, p2)
	be.setInventory(model.KindGarment, c5)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)
	require.NoError(t, c.OnSelect(context.Background(), model.KindPerson, 2))

	be.setInventory(model.KindPerson, p3, p1)
	require.NoError(t, c.Reload(context.Background(), model.KindPerson))
	s := settle(t, c)

	require.NotNil(t, s.Person.Selected)
	assert.Equal(t, int64(3), s.Person.Selected.ID)

	be.setInventory(model.KindPerson)
	require.NoError(t, c.Reload(context.Background(), model.KindPerson))
	s = settle(t, c)

	assert.Nil(t, s.Person.Selected)
	assert.False(t, s.CanGenerate)
	assert.Equal(t, "Upload a person image", s.Person.Placeholder)
}

func TestUploadReloadRaceLastCompletionWins(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)
	rec := record(c)

	be.gate("list person")
	require.NoError(t, c.OnUpload(context.Background(), model.KindPerson, "p.png", []byte("png")))
	be.awaitArrival(t, "list person", 1) // reload triggered by the upload
	require.NoError(t, c.Reload(context.Background(), model.KindPerson))
	be.awaitArrival(t, "list person", 2) // manual reload

	// The manual reload finishes first...
	be.setInventory(model.KindPerson, p2)
	be.release(t, "list person", 1)
	require.Eventually(t, func() bool {
		inv := c.State().Person.Inventory
		return len(inv) == 1 && inv[0].ID == 2
	}, 2*time.Second, 5*time.Millisecond)

	// ...then the upload's reload, which wins because it completes last.
	be.setInventory(model.KindPerson, p3, p2)
	be.release(t, "list person", 0)
	s := settle(t, c)

	assert.Equal(t, model.Inventory{p3, p2}, s.Person.Inventory)
	require.NotNil(t, s.Person.Selected)
	assert.Equal(t, int64(2), s.Person.Selected.ID, "selection kept across the two loads")
	assert.Empty(t, rec.errors())
}

func TestSelectionChangeUpdatesTriggerImmediately(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1, p2)
	be.setInventory(model.KindGarment, c5)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	require.NoError(t, c.OnSelect(context.Background(), model.KindPerson, 2))

	// No Settle: the command's own state change is already published.
	s := c.State()
	assert.Equal(t, int64(2), s.Person.Selected.ID)
	assert.Equal(t, "/images/persons/p2.jpg", s.Person.ImageURL)
	assert.True(t, s.CanGenerate)
}

// =========================================================================
// GENERATION
// =========================================================================

func TestDuplicateGenerateIsConflict(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	be.gate("tryon")
	require.NoError(t, c.OnGenerate(context.Background()))

	s := c.State()
	assert.Equal(t, tryon.PhasePending, s.Generation.Phase)
	assert.Equal(t, "Generating...", s.Generation.Text)
	assert.False(t, s.CanGenerate)

	err := c.OnGenerate(context.Background())
	assert.ErrorIs(t, err, apperror.ErrConflict)

	be.awaitArrival(t, "tryon", 1)
	be.release(t, "tryon", 0)
	s = settle(t, c)

	assert.Len(t, s.Results, 1)
	assert.Equal(t, 1, be.count("tryon"))
}

func TestGenerationFailureKeepsSelection(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1, p2)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(apperror.GenerationFailed("VTON process failed"))
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)
	require.NoError(t, c.OnSelect(context.Background(), model.KindPerson, 2))

	require.NoError(t, c.OnGenerate(context.Background()))
	s := settle(t, c)

	assert.Equal(t, tryon.PhaseFailed, s.Generation.Phase)
	assert.Equal(t, "Error: VTON process failed", s.Generation.Text)
	assert.Empty(t, s.Results)
	assert.Equal(t, int64(2), s.Person.Selected.ID)
	assert.True(t, s.CanGenerate, "the user can retry without re-selecting")

	be.setTryOn(nil, "r2.png")
	require.NoError(t, c.OnGenerate(context.Background()))
	s = settle(t, c)
	assert.Equal(t, []model.ResultRef{"r2.png"}, s.Results)
}

func TestGenerationNetworkFailureIsSurfaced(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(apperror.Network("generate try-on", errRefused))
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	require.NoError(t, c.OnGenerate(context.Background()))
	s := settle(t, c)

	assert.Equal(t, tryon.PhaseFailed, s.Generation.Phase)
	assert.Equal(t, "Error: generate try-on: network failure", s.Generation.Text)
	assert.NotNil(t, s.Identity, "network errors have no global effect")
}

func TestGenerateRequiresCompleteSelection(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	err := c.OnGenerate(context.Background())

	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Equal(t, 0, be.count("tryon"))
}

func TestResultsAreAppendOnly(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setInventory(model.KindGarment, c5)
	be.setTryOn(nil, "same.png", "same.png")
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)
	rec := record(c)

	require.NoError(t, c.OnGenerate(context.Background()))
	first := settle(t, c).Results
	require.NoError(t, c.OnGenerate(context.Background()))
	second := settle(t, c).Results

	assert.Equal(t, []model.ResultRef{"same.png"}, first, "earlier snapshots never change")
	assert.Equal(t, []model.ResultRef{"same.png", "same.png"}, second, "no deduplication")

	prev := 0
	for _, s := range rec.all() {
		assert.GreaterOrEqual(t, len(s.Results), prev)
		prev = len(s.Results)
	}
}

// =========================================================================
// PARTIAL FAILURES AND VALIDATION
// =========================================================================

func TestInventoryNetworkFailureIsLocal(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindGarment, c5)
	be.setListErr(model.KindPerson, apperror.Network("list person photos", errRefused))
	c := startController(t, loggedIn(mina, "tok"), be)

	s := resolve(t, c)

	assert.Equal(t, tryon.StatusFailed, s.Person.Status)
	assert.Equal(t, "Failed to load photos.", s.Person.Message)
	assert.Equal(t, tryon.StatusLoaded, s.Garment.Status)
	assert.Equal(t, int64(5), s.Garment.Selected.ID)
	assert.NotNil(t, s.Identity)

	be.setListErr(model.KindPerson, nil)
	be.setInventory(model.KindPerson, p1)
	require.NoError(t, c.Reload(context.Background(), model.KindPerson))
	s = settle(t, c)
	assert.Equal(t, tryon.StatusLoaded, s.Person.Status)
	assert.Empty(t, s.Person.Message)
	assert.True(t, s.CanGenerate)
}

func TestGarmentFailureText(t *testing.T) {
	be := newFakeBackend()
	be.setListErr(model.KindGarment, apperror.Network("list cloth photos", errRefused))
	c := startController(t, loggedIn(mina, "tok"), be)

	s := resolve(t, c)

	assert.Equal(t, "Failed to load clothes.", s.Garment.Message)
}

func TestUploadRejectedByBackend(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	be.setUploadErr(apperror.ValidationFailed("file", "Invalid image file."))
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	require.NoError(t, c.OnUpload(context.Background(), model.KindPerson, "a.txt", []byte("text")))
	s := settle(t, c)

	assert.Equal(t, "Invalid image file.", s.Person.UploadError)
	assert.Equal(t, model.Inventory{p1}, s.Person.Inventory)
	assert.Equal(t, 1, be.count("list person"), "failed upload does not reload")
	assert.Equal(t, 0, s.Person.Uploading)
}

func TestUploadPrecheck(t *testing.T) {
	be := newFakeBackend()
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"no file name", "", []byte("x")},
		{"empty file", "a.png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.OnUpload(context.Background(), model.KindPerson, tt.filename, tt.data)
			assert.ErrorIs(t, err, apperror.ErrValidation)
		})
	}
	assert.Equal(t, 0, be.count("upload person"))
}

func TestOnSelectUnknownPhoto(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	c := startController(t, loggedIn(mina, "tok"), be)
	resolve(t, c)

	err := c.OnSelect(context.Background(), model.KindPerson, 99)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	err = c.OnSelect(context.Background(), model.Kind("hat"), 1)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestIdentityUnavailableKeepsCredential(t *testing.T) {
	authn := &fakeAuth{res: auth.Resolution{
		Credential: "tok",
		Err:        apperror.Network("fetch identity", errRefused),
	}}
	be := newFakeBackend()
	c := startController(t, authn, be)

	s := resolve(t, c)

	assert.Nil(t, s.Identity)
	assert.False(t, s.LoginPrompt)
	assert.Equal(t, "fetch identity: network failure", s.IdentityError)
	assert.Equal(t, tryon.StatusIdle, s.Person.Status)
	assert.Equal(t, 0, be.count("list person"))
	assert.Equal(t, 0, authn.clearCount())

	// Retry once the backend is back.
	authn.set(auth.Resolution{Identity: mina, Credential: "tok"})
	s = resolve(t, c)
	assert.NotNil(t, s.Identity)
	assert.Empty(t, s.IdentityError)
}

func TestLoggedOutState(t *testing.T) {
	s := freshUnauthenticated(t)

	assert.Nil(t, s.Identity)
	assert.True(t, s.LoginPrompt)
	assert.False(t, s.CanGenerate)
	assert.Equal(t, "Please log in to use.", s.Person.Message)
	assert.Equal(t, "Please log in to use.", s.Garment.Message)
}

func TestInvariantsHoldThroughoutASession(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1, p2)
	be.setInventory(model.KindGarment, c5, c6)
	c := startController(t, loggedIn(mina, "tok"), be)
	rec := record(c)
	ctx := context.Background()

	resolve(t, c)
	require.NoError(t, c.OnSelect(ctx, model.KindGarment, 6))
	require.NoError(t, c.OnUpload(ctx, model.KindPerson, "new.png", []byte("png")))
	require.NoError(t, c.Reload(ctx, model.KindGarment))
	require.NoError(t, c.OnGenerate(ctx))
	settle(t, c)
	be.setListErr(model.KindGarment, apperror.Unauthorized(""))
	require.NoError(t, c.Reload(ctx, model.KindGarment))
	settle(t, c)

	assert.NotEmpty(t, rec.all())
	assert.Empty(t, rec.errors())
}

// =========================================================================
// LIFECYCLE
// =========================================================================

func TestCommandsBeforeStartAndAfterStop(t *testing.T) {
	c := tryon.New(loggedOut(), newFakeBackend(), discardLogger())

	assert.ErrorIs(t, c.Resolve(context.Background()), tryon.ErrNotStarted)

	c.Start()
	c.Stop()
	c.Stop() // idempotent

	assert.ErrorIs(t, c.Resolve(context.Background()), tryon.ErrStopped)
}

func TestStopCancelsInFlightRequests(t *testing.T) {
	be := newFakeBackend()
	be.gate("list person")
	c := tryon.New(loggedIn(mina, "tok"), be, discardLogger())
	c.Start()

	require.NoError(t, c.Resolve(context.Background()))
	be.awaitArrival(t, "list person", 1)

	done := make(chan struct{})
	go func() {
		c.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return while a request was in flight")
	}
}

func TestImageBaseOption(t *testing.T) {
	be := newFakeBackend()
	be.setInventory(model.KindPerson, p1)
	c := startController(t, loggedIn(mina, "tok"), be, tryon.WithImageBase("http://backend:8000"))

	s := resolve(t, c)

	assert.Equal(t, "http://backend:8000/images/persons/p1.jpg", s.Person.ImageURL)
}
