package server

import "sync"

// Library holds the files this gateway provides, keyed by name
type Library struct {
	mu    sync.RWMutex
	files map[string]string
}

// NewLibrary creates an empty library
func NewLibrary() *Library {
	return &Library{files: make(map[string]string)}
}

// Put stores content under name, replacing any previous version
func (l *Library) Put(name, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.files[name] = content
}

// Get returns the content stored under name
func (l *Library) Get(name string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	content, ok := l.files[name]
	return content, ok
}

// Len returns the number of stored files
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}
