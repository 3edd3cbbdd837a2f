// Package upstream defines the interface to the Bitwarden Secrets Manager
// backend and the error taxonomy shared by the cache and fetch layers.
//
// All calls are blocking remote operations with no internal retry; retry
// policy belongs to the caller.
package upstream

import (
	"context"
)

// Secret is a decrypted secret as returned by the backend.
type Secret struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`

	// ProjectID is empty for secrets not assigned to a project.
	ProjectID string `json:"project_id,omitempty"`

	Key   string `json:"key"`
	Value string `json:"value"`
	Note  string `json:"note"`

	// CreationDate and RevisionDate are RFC 3339 timestamps.
	CreationDate string `json:"creation_date"`
	RevisionDate string `json:"revision_date"`
}

// SecretIdentifier is a list entry: the backend returns identifiers only,
// never values, from list operations.
type SecretIdentifier struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Key            string `json:"key"`
}

// SecretWrite carries the caller-supplied fields of a create or update.
type SecretWrite struct {
	Key       string
	Value     string
	Note      string
	ProjectID string
}

// Client is an authenticated handle to the secrets backend.
// Implementations must be safe for concurrent use.
type Client interface {
	// GetSecret fetches and decrypts a single secret by ID.
	GetSecret(ctx context.Context, secretID string) (*Secret, error)

	// ListSecrets returns the identifiers of all secrets in the organization.
	ListSecrets(ctx context.Context, organizationID string) ([]SecretIdentifier, error)

	// CreateSecret creates a new secret and returns the stored result.
	CreateSecret(ctx context.Context, organizationID string, write SecretWrite) (*Secret, error)

	// UpdateSecret replaces the fields of an existing secret.
	UpdateSecret(ctx context.Context, secretID, organizationID string, write SecretWrite) (*Secret, error)

	// DeleteSecret removes a secret by ID.
	DeleteSecret(ctx context.Context, secretID string) error

	// Close releases the handle. The handle must not be used afterwards.
	Close() error
}

// Connector establishes authenticated client handles. The session holder
// calls Connect lazily on first use and again after an auth failure.
type Connector interface {
	Connect(ctx context.Context) (Client, error)
}
