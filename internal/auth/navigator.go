package auth

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sakif/tryon-studio/internal/model"
)

// Navigator is the page address the user arrived on. Only its fragment
// matters: the login redirect delivers the credential there.
type Navigator interface {
	// Fragment returns the part after '#', without the '#'.
	Fragment() string
	// ClearFragment strips the fragment so the token is consumed once and
	// does not linger in history or bookmarks.
	ClearFragment()
}

// ExtractFragmentToken reads the "token" parameter of a fragment such as
// "token=abc" or "#token=abc&state=x". The value is returned exactly as it
// appears: the credential is opaque, so nothing is unescaped.
func ExtractFragmentToken(fragment string) (model.Credential, bool) {
	fragment = strings.TrimPrefix(fragment, "#")
	for part := range strings.SplitSeq(fragment, "&") {
		tok, ok := strings.CutPrefix(part, "token=")
		if ok && tok != "" {
			return model.Credential(tok), true
		}
	}
	return "", false
}

// FragmentNavigator holds a fragment handed over by a browser page.
// The page reads location.hash and posts it; this type then behaves like the
// page's own address for the provider.
type FragmentNavigator struct {
	mu       sync.Mutex
	fragment string
}

func NewFragmentNavigator(fragment string) *FragmentNavigator {
	return &FragmentNavigator{fragment: strings.TrimPrefix(fragment, "#")}
}

func (n *FragmentNavigator) Fragment() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.fragment
}

func (n *FragmentNavigator) ClearFragment() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fragment = ""
}

// Set replaces the fragment, e.g. when the page reports a new redirect.
func (n *FragmentNavigator) Set(fragment string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fragment = strings.TrimPrefix(fragment, "#")
}

// URLNavigator wraps a full address, such as a redirect URL pasted into the
// terminal after logging in through a browser.
type URLNavigator struct {
	mu sync.Mutex
	u  *url.URL
}

// ParseURLNavigator parses raw. An empty raw gives a navigator with no
// fragment.
func ParseURLNavigator(raw string) (*URLNavigator, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("auth: parsing redirect URL: %w", err)
	}
	return &URLNavigator{u: u}, nil
}

// Fragment returns the fragment as written in the address, still escaped.
func (n *URLNavigator) Fragment() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.u.EscapedFragment()
}

func (n *URLNavigator) ClearFragment() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.u.Fragment = ""
	n.u.RawFragment = ""
}

// String returns the address as it currently stands.
func (n *URLNavigator) String() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.u.String()
}
