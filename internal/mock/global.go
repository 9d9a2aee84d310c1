package mock

import (
	"sync"

	"github.com/torosent/courier/internal/httpclient"
)

// Global holds one mock client for every connector bound to it with
// WithGlobalMocks. A connector's own mock client always takes precedence.
// Lifecycle is explicit: Make, Resolve, Destroy.
type Global struct {
	mu     sync.RWMutex
	client *Client
}

// NewGlobal returns an empty registry. Tests that run in parallel should
// each own one instead of sharing Process.
func NewGlobal() *Global {
	return &Global{}
}

var process = NewGlobal()

// Process returns the registry shared by the whole process.
func Process() *Global {
	return process
}

// Make creates a sequence client from responses and installs it, replacing
// any previous one.
func (g *Global) Make(responses ...*MockResponse) *Client {
	return g.Use(Sequence(responses...))
}

// Use installs c, replacing any previous client.
func (g *Global) Use(c *Client) *Client {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = c
	return c
}

// Resolve returns the installed client, or nil.
func (g *Global) Resolve() *Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

// Destroy removes the installed client.
func (g *Global) Destroy() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
}

// Current implements httpclient.GlobalMocks.
func (g *Global) Current() httpclient.Interceptor {
	if c := g.Resolve(); c != nil {
		return c
	}
	return nil
}
