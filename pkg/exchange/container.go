package exchange

import (
	"fmt"
	"sync"
)

// Container is a thread-safe registry for connector instances, keyed by
// exchange name. A host running sessions against multiple deployments
// (e.g., different domains) registers one connector per session.
type Container struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewContainer creates and returns a new empty container.
func NewContainer() *Container {
	return &Container{
		connectors: make(map[string]Connector),
	}
}

// Register adds a connector under the given name, overwriting any
// previous registration.
func (c *Container) Register(name string, conn Connector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectors[name] = conn
}

// Get retrieves a connector by name.
func (c *Container) Get(name string) (Connector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	conn, exists := c.connectors[name]
	if !exists {
		return nil, fmt.Errorf("connector %q not found", name)
	}
	return conn, nil
}

// Names returns all registered connector names.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.connectors))
	for name := range c.connectors {
		names = append(names, name)
	}
	return names
}

// Unregister removes a connector by name.
func (c *Container) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connectors, name)
}

// Exists checks whether a connector with the given name is registered.
func (c *Container) Exists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.connectors[name]
	return exists
}
