package artifact

import (
	"slices"
	"sync"
)

type key struct {
	session string
	id      string
}

// InMemoryStore keeps artifacts in process memory. It applies the same name
// rules as FileStore, so a transcript that saves here also saves to disk.
// Buffers are cloned in both directions.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[key][]byte
}

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[key][]byte)}
}

func (s *InMemoryStore) key(sessionID, artifactID string) (key, error) {
	if err := checkName(sessionID); err != nil {
		return key{}, err
	}
	if err := checkName(artifactID); err != nil {
		return key{}, err
	}
	return key{session: sessionID, id: artifactID}, nil
}

// Save implements core.ArtifactStore.
func (s *InMemoryStore) Save(sessionID, artifactID string, data []byte) error {
	k, err := s.key(sessionID, artifactID)
	if err != nil {
		return err
	}
	buf := slices.Clone(data)
	if buf == nil {
		buf = []byte{}
	}

	s.mu.Lock()
	s.data[k] = buf
	s.mu.Unlock()
	return nil
}

// Get implements core.ArtifactStore.
func (s *InMemoryStore) Get(sessionID, artifactID string) ([]byte, error) {
	k, err := s.key(sessionID, artifactID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	buf, ok := s.data[k]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(buf), nil
}

// List implements core.ArtifactStore.
func (s *InMemoryStore) List(sessionID string) ([]string, error) {
	if err := checkName(sessionID); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := []string{}
	for k := range s.data {
		if k.session == sessionID {
			ids = append(ids, k.id)
		}
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}

// Delete implements core.ArtifactStore.
func (s *InMemoryStore) Delete(sessionID, artifactID string) error {
	k, err := s.key(sessionID, artifactID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[k]; !ok {
		return ErrNotFound
	}
	delete(s.data, k)
	return nil
}
