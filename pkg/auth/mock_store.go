package auth

import "sync"

// MockStore implements CredentialStore in memory for tests
type MockStore struct {
	projects map[string]*Project
	mu       sync.RWMutex

	// Error injection
	StoreError    error
	RetrieveError error
	ListError     error
	DeleteError   error
}

// NewMockStore creates a new in-memory credential store
func NewMockStore() *MockStore {
	return &MockStore{projects: make(map[string]*Project)}
}

// Store saves a copy of the project
func (m *MockStore) Store(project *Project) error {
	if m.StoreError != nil {
		return m.StoreError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if project == nil || project.Name == "" {
		return ErrInvalidCredentials
	}
	p := *project
	m.projects[project.Name] = &p
	return nil
}

// Retrieve returns a copy of the named project
func (m *MockStore) Retrieve(name string) (*Project, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		return nil, ErrInvalidCredentials
	}
	project, exists := m.projects[name]
	if !exists {
		return nil, ErrCredentialsNotFound
	}
	p := *project
	return &p, nil
}

// List returns copies of all projects
func (m *MockStore) List() ([]*Project, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := make([]*Project, 0, len(m.projects))
	for _, project := range m.projects {
		p := *project
		projects = append(projects, &p)
	}
	return projects, nil
}

// Delete removes the named project
func (m *MockStore) Delete(name string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return ErrInvalidCredentials
	}
	if _, exists := m.projects[name]; !exists {
		return ErrCredentialsNotFound
	}
	delete(m.projects, name)
	return nil
}

// Exists checks if the named project is stored
func (m *MockStore) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.projects[name]
	return exists
}

// Count returns the number of stored projects
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.projects)
}

// NewMockManager creates a Manager with a single mock store
func NewMockManager() (*Manager, *MockStore) {
	store := NewMockStore()
	return NewManagerWithStores(store), store
}
