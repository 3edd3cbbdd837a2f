package cache

import (
	"fmt"
	"strings"
)

// Kind distinguishes the cached object classes.
type Kind string

const (
	// KindSecret caches a single decrypted secret value.
	KindSecret Kind = "secret"

	// KindList caches the identifier listing of an organization.
	KindList Kind = "list"
)

// Key identifies a cached object. Immutable once created.
type Key struct {
	Kind           Kind
	OrganizationID string

	// SecretID is empty for list keys.
	SecretID string
}

// SecretKey builds the key for a single secret.
func SecretKey(organizationID, secretID string) Key {
	return Key{Kind: KindSecret, OrganizationID: organizationID, SecretID: secretID}
}

// ListKey builds the key for an organization's secret listing.
func ListKey(organizationID string) Key {
	return Key{Kind: KindList, OrganizationID: organizationID}
}

// String generates a deterministic cache key string.
// Format: bws:kind:org_id[:secret_id]
//
// Example:
//
//	bws:secret:5d9b8cb0-e212-4345-b2f3-2b6a84e84bcb:6c2e6a31-5f4d-4bd7-9df6-96cb3f1a1e3a
func (k Key) String() string {
	parts := []string{"bws", string(k.Kind), k.OrganizationID}
	if k.SecretID != "" {
		parts = append(parts, k.SecretID)
	}
	return strings.Join(parts, ":")
}

// Validate reports malformed keys before they reach the store.
func (k Key) Validate() error {
	switch k.Kind {
	case KindSecret:
		if k.SecretID == "" {
			return fmt.Errorf("secret key requires a secret ID")
		}
	case KindList:
		if k.SecretID != "" {
			return fmt.Errorf("list key must not carry a secret ID")
		}
	default:
		return fmt.Errorf("unknown key kind %q", k.Kind)
	}
	if k.OrganizationID == "" {
		return fmt.Errorf("key requires an organization ID")
	}
	return nil
}
