package tryon

import (
	"github.com/sakif/tryon-studio/internal/apperror"
	"github.com/sakif/tryon-studio/internal/model"
)

// LoadStatus is the outcome of the most recent inventory load.
type LoadStatus string

const (
	StatusIdle          LoadStatus = "idle"
	StatusLoginRequired LoadStatus = "login_required"
	StatusLoaded        LoadStatus = "loaded"
	StatusFailed        LoadStatus = "failed"
)

// Texts shown by the UI. They match what users of the web page already know.
const (
	TextLoginRequired  = "Please log in to use."
	TextPersonsFailed  = "Failed to load photos."
	TextClothesFailed  = "Failed to load clothes."
	TextPersonEmpty    = "Upload a person image"
	TextClothEmpty     = "Upload a cloth image"
	TextGenerating     = "Generating..."
	TextNoResults      = "No results generated in this session yet."
	textErrorPrefix    = "Error: "
	textSelectionEmpty = "Please select a person and a cloth image first."
)

// KindView is the display state of one inventory and its selector.
type KindView struct {
	Kind      model.Kind      `json:"kind"`
	Status    LoadStatus      `json:"status"`
	Loading   bool            `json:"loading"`
	Inventory model.Inventory `json:"inventory"`
	Selected  *model.PhotoRef `json:"selected"`
	// ImageURL shows the selected photo; Placeholder replaces it when
	// nothing is selected.
	ImageURL    string `json:"image_url,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	// Message is the selector's status line ("Please log in to use.", ...).
	Message     string `json:"message,omitempty"`
	Uploading   int    `json:"uploading"`
	UploadError string `json:"upload_error,omitempty"`
}

// GenerationView is the result panel.
type GenerationView struct {
	Phase    Phase           `json:"phase"`
	Result   model.ResultRef `json:"result,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
	Text     string          `json:"text,omitempty"`
}

// State is an immutable snapshot of everything the UI renders. A new State
// is published after every event; old snapshots are never modified.
type State struct {
	Resolving     bool            `json:"resolving"`
	Identity      *model.Identity `json:"identity"`
	IdentityError string          `json:"identity_error,omitempty"`
	LoginPrompt   bool            `json:"login_prompt"`

	Person  KindView `json:"person"`
	Garment KindView `json:"garment"`

	Generation  GenerationView `json:"generation"`
	CanGenerate bool           `json:"can_generate"`

	Results     []model.ResultRef `json:"results"`
	ResultsText string            `json:"results_text,omitempty"`
}

// Authenticated reports whether an identity is present.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// View returns the display state of kind.
func (s State) View(kind model.Kind) KindView {
	if kind == model.KindGarment {
		return s.Garment
	}
	return s.Person
}

// ResultURLs returns the image path of every session result, in order.
func (s State) ResultURLs(base string) []string {
	out := make([]string, len(s.Results))
	for i, r := range s.Results {
		out[i] = base + r.URL()
	}
	return out
}

// inventory is the controller's loop-owned record for one kind.
type inventory struct {
	items     model.Inventory
	status    LoadStatus
	err       error
	loads     int
	uploading int
	uploadErr error
}

func newInventory(status LoadStatus) *inventory {
	return &inventory{items: model.Inventory{}, status: status}
}

func placeholder(kind model.Kind) string {
	if kind == model.KindGarment {
		return TextClothEmpty
	}
	return TextPersonEmpty
}

func failedText(kind model.Kind) string {
	if kind == model.KindGarment {
		return TextClothesFailed
	}
	return TextPersonsFailed
}

func (inv *inventory) view(kind model.Kind, selected *model.PhotoRef, imageBase string) KindView {
	v := KindView{
		Kind:      kind,
		Status:    inv.status,
		Loading:   inv.loads > 0,
		Inventory: inv.items,
		Selected:  selected,
		Uploading: inv.uploading,
	}
	if selected != nil {
		v.ImageURL = imageBase + selected.ImagePath(kind)
	} else {
		v.Placeholder = placeholder(kind)
	}
	switch inv.status {
	case StatusLoginRequired:
		v.Message = TextLoginRequired
	case StatusFailed:
		v.Message = failedText(kind)
	}
	if inv.uploadErr != nil {
		v.UploadError = apperror.Message(inv.uploadErr)
	}
	return v
}

func generationView(r *Requestor, imageBase string) GenerationView {
	v := GenerationView{Phase: r.Phase()}
	switch r.Phase() {
	case PhasePending:
		v.Text = TextGenerating
	case PhaseFailed:
		v.Text = textErrorPrefix + apperror.Message(r.Err())
	case PhaseSucceeded:
		v.Result = r.Result()
		v.ImageURL = imageBase + r.Result().URL()
	}
	return v
}
