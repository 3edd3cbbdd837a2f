// Package testutil provides a configurable mock secrets backend for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

// MockClient is an in-memory upstream client with call tracking, scripted
// failures and an optional gate that holds fetches open so tests can pile
// up concurrent waiters deterministically.
type MockClient struct {
	mu      sync.Mutex
	secrets map[string]*upstream.Secret

	getCalls    int
	listCalls   int
	writeCalls  int
	closeCalls  int
	getCallsPer map[string]int

	getErr   error
	listErr  error
	writeErr error

	getGate chan struct{}
}

// NewMockClient creates an empty mock backend.
func NewMockClient() *MockClient {
	return &MockClient{
		secrets:     make(map[string]*upstream.Secret),
		getCallsPer: make(map[string]int),
	}
}

// PutSecret installs or replaces a secret on the mock backend.
func (m *MockClient) PutSecret(s *upstream.Secret) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.secrets[s.ID] = &copied
}

// RemoveSecret deletes a secret from the mock backend.
func (m *MockClient) RemoveSecret(secretID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, secretID)
}

// SetGetError makes GetSecret fail with err until cleared with nil.
func (m *MockClient) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// SetListError makes ListSecrets fail with err until cleared with nil.
func (m *MockClient) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// SetWriteError makes create/update/delete fail with err until cleared.
func (m *MockClient) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetGetGate installs a gate channel: every GetSecret blocks until the
// gate is closed. Pass nil to remove the gate.
func (m *MockClient) SetGetGate(gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getGate = gate
}

// GetCalls returns the total number of GetSecret calls.
func (m *MockClient) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

// GetCallsFor returns the number of GetSecret calls for one secret ID.
func (m *MockClient) GetCallsFor(secretID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCallsPer[secretID]
}

// ListCalls returns the total number of ListSecrets calls.
func (m *MockClient) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// CloseCalls returns how often Close was called.
func (m *MockClient) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

// GetSecret implements upstream.Client.
func (m *MockClient) GetSecret(ctx context.Context, secretID string) (*upstream.Secret, error) {
	m.mu.Lock()
	m.getCalls++
	m.getCallsPer[secretID]++
	gate := m.getGate
	err := m.getErr
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, upstream.NewError(upstream.ErrorClassTimeout, "get", ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	secret, ok := m.secrets[secretID]
	if !ok {
		return nil, upstream.NewError(upstream.ErrorClassNotFound, "get",
			fmt.Errorf("secret %s not found", secretID))
	}
	copied := *secret
	return &copied, nil
}

// ListSecrets implements upstream.Client.
func (m *MockClient) ListSecrets(ctx context.Context, organizationID string) ([]upstream.SecretIdentifier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++

	if m.listErr != nil {
		return nil, m.listErr
	}

	var identifiers []upstream.SecretIdentifier
	for _, s := range m.secrets {
		if s.OrganizationID != organizationID {
			continue
		}
		identifiers = append(identifiers, upstream.SecretIdentifier{
			ID:             s.ID,
			OrganizationID: s.OrganizationID,
			Key:            s.Key,
		})
	}
	return identifiers, nil
}

// CreateSecret implements upstream.Client.
func (m *MockClient) CreateSecret(ctx context.Context, organizationID string, write upstream.SecretWrite) (*upstream.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++

	if m.writeErr != nil {
		return nil, m.writeErr
	}

	secret := &upstream.Secret{
		ID:             fmt.Sprintf("mock-%d", len(m.secrets)+1),
		OrganizationID: organizationID,
		ProjectID:      write.ProjectID,
		Key:            write.Key,
		Value:          write.Value,
		Note:           write.Note,
	}
	m.secrets[secret.ID] = secret
	copied := *secret
	return &copied, nil
}

// UpdateSecret implements upstream.Client.
func (m *MockClient) UpdateSecret(ctx context.Context, secretID, organizationID string, write upstream.SecretWrite) (*upstream.Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++

	if m.writeErr != nil {
		return nil, m.writeErr
	}

	secret, ok := m.secrets[secretID]
	if !ok {
		return nil, upstream.NewError(upstream.ErrorClassNotFound, "update",
			fmt.Errorf("secret %s not found", secretID))
	}
	secret.Key = write.Key
	secret.Value = write.Value
	secret.Note = write.Note
	secret.ProjectID = write.ProjectID
	copied := *secret
	return &copied, nil
}

// DeleteSecret implements upstream.Client.
func (m *MockClient) DeleteSecret(ctx context.Context, secretID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++

	if m.writeErr != nil {
		return m.writeErr
	}
	if _, ok := m.secrets[secretID]; !ok {
		return upstream.NewError(upstream.ErrorClassNotFound, "delete",
			fmt.Errorf("secret %s not found", secretID))
	}
	delete(m.secrets, secretID)
	return nil
}

// Close implements upstream.Client.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	return nil
}

// MockConnector hands out clients in sequence. The last client is reused
// once the list is exhausted, so one-client setups need no repetition.
type MockConnector struct {
	mu       sync.Mutex
	clients  []upstream.Client
	err      error
	connects int
}

// NewMockConnector creates a connector returning the given clients in order.
func NewMockConnector(clients ...upstream.Client) *MockConnector {
	return &MockConnector{clients: clients}
}

// SetConnectError makes Connect fail with err until cleared with nil.
func (c *MockConnector) SetConnectError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Connects returns how often Connect was called.
func (c *MockConnector) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// Connect implements upstream.Connector.
func (c *MockConnector) Connect(ctx context.Context) (upstream.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++

	if c.err != nil {
		return nil, c.err
	}
	if len(c.clients) == 0 {
		return nil, fmt.Errorf("mock connector has no clients")
	}

	client := c.clients[0]
	if len(c.clients) > 1 {
		c.clients = c.clients[1:]
	}
	return client, nil
}
