package auth

import (
	"os"
	"time"
)

// EnvironmentProjectName is the name reported for environment credentials
const EnvironmentProjectName = "env"

// EnvironmentStore implements CredentialStore over SUPABASE_URL and
// SUPABASE_KEY. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(project *Project) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment project, named "env"
func (e *EnvironmentStore) Retrieve(name string) (*Project, error) {
	if name != "" && name != EnvironmentProjectName {
		return nil, ErrCredentialsNotFound
	}
	url := firstEnv("TOPICSYNC_SUPABASE_URL", "SUPABASE_URL")
	key := firstEnv("TOPICSYNC_SUPABASE_KEY", "SUPABASE_KEY")
	if url == "" || key == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Project{
		Name:         EnvironmentProjectName,
		URL:          url,
		APIKey:       key,
		LastModified: time.Time{},
	}, nil
}

// List returns a single project if the environment is set
func (e *EnvironmentStore) List() ([]*Project, error) {
	project, err := e.Retrieve("")
	if err != nil {
		return []*Project{}, nil
	}
	return []*Project{project}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
