package mix

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrContextBusy is returned by Open while another context is still open.
	// Building two graphs at once is a caller bug, not a recoverable race.
	ErrContextBusy   = errors.New("audio processing context already in use")
	ErrContextClosed = errors.New("audio processing context closed")
)

// Engine hands out the single audio processing context.
type Engine struct {
	mu     sync.Mutex
	open   *Context
	opened int
}

// NewEngine creates an engine with no open context.
func NewEngine() *Engine {
	return &Engine{}
}

// Open returns a fresh context. The previous one must have been closed.
func (e *Engine) Open() (*Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open != nil {
		return nil, ErrContextBusy
	}
	c := &Context{id: uuid.NewString(), engine: e}
	e.open = c
	e.opened++
	slog.Debug("Audio context opened", "context", c.id)
	return c, nil
}

// InUse reports whether a context is currently open.
func (e *Engine) InUse() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open != nil
}

// Opened returns how many contexts were handed out over the engine's life.
func (e *Engine) Opened() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opened
}

func (e *Engine) release(c *Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open == c {
		e.open = nil
	}
}

// Context is the processing resource a graph runs in. It cannot be reopened
// once closed.
type Context struct {
	id     string
	engine *Engine

	mu     sync.Mutex
	graph  *Graph
	closed bool
}

// ID identifies the context in logs.
func (c *Context) ID() string {
	return c.id
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Context) attach(g *Graph) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrContextClosed
	}
	if c.graph != nil {
		return ErrContextBusy
	}
	c.graph = g
	return nil
}

// Close frees the context. A graph still attached is torn down first.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	g := c.graph
	c.graph = nil
	c.mu.Unlock()

	if g != nil {
		g.mu.Lock()
		torn := g.torn
		g.torn = true
		g.mu.Unlock()
		if !torn {
			close(g.stop)
			<-g.done
		}
	}

	c.engine.release(c)
	slog.Debug("Audio context closed", "context", c.id)
	return nil
}
