package thread

import (
	"context"
	"sync"
)

// MemoryStore holds thread state in process memory. It assumes turns for a
// given thread arrive serially from the client; concurrent updates to the
// same thread resolve last-write-wins. State does not survive a restart,
// so deployments with more than one replica should use PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory thread state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Get returns the state for a thread, or found=false if the thread has
// never been updated.
func (s *MemoryStore) Get(ctx context.Context, threadID string) (*State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[threadID]
	if !ok {
		return nil, false, nil
	}
	return &state, true, nil
}

// Update shallow-merges the patch into the thread's state, creating the
// default state lazily on first access.
func (s *MemoryStore) Update(ctx context.Context, threadID string, patch Patch) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[threadID]
	if !ok {
		state = DefaultState(threadID)
	}

	state = merge(state, patch)
	s.states[threadID] = state

	return &state, nil
}

// Reset removes a thread's state entirely. The next update starts from the
// default state again.
func (s *MemoryStore) Reset(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, threadID)
	return nil
}
