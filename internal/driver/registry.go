package driver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	drivers = make(map[string]Driver)
	aliases = make(map[string]string)
)

// Register makes a driver available by its name and aliases. It panics on a
// duplicate name, like database/sql.Register.
func Register(d Driver) {
	mu.Lock()
	defer mu.Unlock()
	name := strings.ToLower(d.Name())
	if _, dup := drivers[name]; dup {
		panic("driver: Register called twice for " + name)
	}
	drivers[name] = d
	for _, a := range d.Aliases() {
		aliases[strings.ToLower(a)] = name
	}
}

// Get returns the driver registered under name or one of its aliases.
func Get(name string) (Driver, error) {
	mu.RLock()
	defer mu.RUnlock()
	key := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	d, ok := drivers[key]
	if !ok {
		return nil, fmt.Errorf("unknown database type %q (available: %s)", name, strings.Join(availableLocked(), ", "))
	}
	return d, nil
}

// Canonical resolves an alias to the primary driver name.
func Canonical(name string) (string, error) {
	d, err := Get(name)
	if err != nil {
		return "", err
	}
	return d.Name(), nil
}

// Available lists the registered driver names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	return availableLocked()
}

func availableLocked() []string {
	names := make([]string, 0, len(drivers))
	for n := range drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
