package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Project holds the connection details of one Supabase project
type Project struct {
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	APIKey       string    `json:"api_key"`
	LastModified time.Time `json:"last_modified"`
}

// DefaultProjectName is used when login is called without a name
const DefaultProjectName = "default"

// CredentialStore is the interface for storing and retrieving projects
type CredentialStore interface {
	// Store saves a project, replacing one with the same name
	Store(project *Project) error

	// Retrieve gets a project by name
	Retrieve(name string) (*Project, error)

	// List returns all stored projects
	List() ([]*Project, error)

	// Delete removes a project by name
	Delete(name string) error

	// Exists checks if a project is stored under name
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager backed by the system keychain when available,
// an encrypted file in the config directory, and the environment.
func NewManager() (*Manager, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	return NewManagerInDir(configDir)
}

// NewManagerInDir is NewManager with an explicit directory for the
// encrypted store and its passphrase file.
func NewManagerInDir(dir string) (*Manager, error) {
	var stores []CredentialStore

	// Try keyring first (system keychain)
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	// Environment is read-only and consulted last
	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over the given stores, in order
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the project using the first store that accepts it
func (m *Manager) Store(project *Project) error {
	if project == nil {
		return ErrInvalidCredentials
	}
	project.Name = strings.TrimSpace(project.Name)
	if project.Name == "" {
		project.Name = DefaultProjectName
	}
	if project.URL == "" {
		return errors.New("project URL is required")
	}
	if project.APIKey == "" {
		return errors.New("API key is required")
	}

	project.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(project)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets a project from the first store that has it
func (m *Manager) Retrieve(name string) (*Project, error) {
	for _, store := range m.stores {
		if project, err := store.Retrieve(name); err == nil && project != nil {
			return project, nil
		}
	}
	return nil, fmt.Errorf("%w: project %q", ErrCredentialsNotFound, name)
}

// RetrieveDefault returns the "default" project, or the only stored one
func (m *Manager) RetrieveDefault() (*Project, error) {
	if project, err := m.Retrieve(DefaultProjectName); err == nil {
		return project, nil
	}

	projects, err := m.List()
	if err != nil {
		return nil, err
	}
	switch len(projects) {
	case 0:
		return nil, ErrCredentialsNotFound
	case 1:
		return projects[0], nil
	default:
		return nil, fmt.Errorf("%d projects stored, pick one with --project", len(projects))
	}
}

// List returns all stored projects sorted by name. When several stores hold
// the same name the most recently modified copy wins.
func (m *Manager) List() ([]*Project, error) {
	byName := make(map[string]*Project)

	for _, store := range m.stores {
		projects, err := store.List()
		if err != nil {
			continue
		}
		for _, project := range projects {
			if existing, ok := byName[project.Name]; !ok || project.LastModified.After(existing.LastModified) {
				byName[project.Name] = project
			}
		}
	}

	result := make([]*Project, 0, len(byName))
	for _, project := range byName {
		result = append(result, project)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// Delete removes the project from every store that holds it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(name)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: project %q", ErrCredentialsNotFound, name)
	}

	return nil
}

// ConfigDir returns the per-user configuration directory, creating it
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "topicsync")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "topicsync")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "topicsync")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "topicsync")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeProject returns a copy of the project with the key masked
func SanitizeProject(project *Project) *Project {
	if project == nil {
		return nil
	}

	return &Project{
		Name:         project.Name,
		URL:          project.URL,
		APIKey:       maskString(project.APIKey),
		LastModified: project.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 12 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
