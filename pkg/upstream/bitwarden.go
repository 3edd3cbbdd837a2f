package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/bitwarden/sdk-go"
	"github.com/rs/zerolog"
)

// BitwardenConnector creates authenticated Bitwarden SDK clients using a
// machine-account access token.
type BitwardenConnector struct {
	// APIURL is the backend API base URL.
	APIURL string

	// IdentityURL is the identity service base URL used for token login.
	IdentityURL string

	// AccessToken is the machine-account access token.
	AccessToken string

	// StateFile optionally persists SDK login state between connects.
	StateFile string

	Logger zerolog.Logger
}

// Connect authenticates against the backend and returns a live handle.
// One network round trip on success; an AuthError is returned when the
// backend rejects the token.
func (c *BitwardenConnector) Connect(ctx context.Context) (Client, error) {
	if c.AccessToken == "" {
		return nil, NewError(ErrorClassAuth, "connect", fmt.Errorf("access token is required"))
	}

	apiURL := c.APIURL
	identityURL := c.IdentityURL

	inner, err := sdk.NewBitwardenClient(&apiURL, &identityURL)
	if err != nil {
		return nil, classify("connect", err)
	}

	var stateFile *string
	if c.StateFile != "" {
		stateFile = &c.StateFile
	}

	login := func() error { return inner.AccessTokenLogin(c.AccessToken, stateFile) }
	if err := callWithContext(ctx, login); err != nil {
		inner.Close()
		return nil, connectError(err)
	}

	c.Logger.Info().Str("api_url", apiURL).Msg("Authenticated against secrets backend")

	return &bitwardenClient{inner: inner}, nil
}

// bitwardenClient adapts the SDK surface to the Client interface.
// The SDK calls are blocking and context-free; callWithContext bounds them.
type bitwardenClient struct {
	inner sdk.BitwardenClientInterface
}

// connectError classifies a login failure. The SDK reports rejected tokens
// as flat strings that often classify as transient, so unrecognized login
// failures are treated as auth failures - except when the caller's context
// ended first, which keeps its cancellation or deadline class.
func connectError(err error) *Error {
	ce := classify("connect", err)
	if ce.Class == ErrorClassTransient && !errors.Is(err, context.Canceled) {
		ce.Class = ErrorClassAuth
	}
	return ce
}

// callWithContext runs fn in its own goroutine and returns early when ctx
// ends. The SDK call itself cannot be interrupted; on deadline the result
// is discarded when it eventually arrives.
func callWithContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (b *bitwardenClient) GetSecret(ctx context.Context, secretID string) (*Secret, error) {
	var resp *sdk.SecretResponse
	err := callWithContext(ctx, func() error {
		var callErr error
		resp, callErr = b.inner.Secrets().Get(secretID)
		return callErr
	})
	if err != nil {
		return nil, classify("get", err)
	}
	return secretFromResponse(resp), nil
}

func (b *bitwardenClient) ListSecrets(ctx context.Context, organizationID string) ([]SecretIdentifier, error) {
	var resp *sdk.SecretIdentifiersResponse
	err := callWithContext(ctx, func() error {
		var callErr error
		resp, callErr = b.inner.Secrets().List(organizationID)
		return callErr
	})
	if err != nil {
		return nil, classify("list", err)
	}

	identifiers := make([]SecretIdentifier, 0, len(resp.Data))
	for _, d := range resp.Data {
		identifiers = append(identifiers, SecretIdentifier{
			ID:             d.ID,
			OrganizationID: d.OrganizationID,
			Key:            d.Key,
		})
	}
	return identifiers, nil
}

func (b *bitwardenClient) CreateSecret(ctx context.Context, organizationID string, write SecretWrite) (*Secret, error) {
	var resp *sdk.SecretResponse
	err := callWithContext(ctx, func() error {
		var callErr error
		resp, callErr = b.inner.Secrets().Create(
			write.Key, write.Value, write.Note, organizationID, projectIDs(write))
		return callErr
	})
	if err != nil {
		return nil, classify("create", err)
	}
	return secretFromResponse(resp), nil
}

func (b *bitwardenClient) UpdateSecret(ctx context.Context, secretID, organizationID string, write SecretWrite) (*Secret, error) {
	var resp *sdk.SecretResponse
	err := callWithContext(ctx, func() error {
		var callErr error
		resp, callErr = b.inner.Secrets().Update(
			secretID, write.Key, write.Value, write.Note, organizationID, projectIDs(write))
		return callErr
	})
	if err != nil {
		return nil, classify("update", err)
	}
	return secretFromResponse(resp), nil
}

func (b *bitwardenClient) DeleteSecret(ctx context.Context, secretID string) error {
	err := callWithContext(ctx, func() error {
		resp, callErr := b.inner.Secrets().Delete([]string{secretID})
		if callErr != nil {
			return callErr
		}
		for _, d := range resp.Data {
			if d.Error != nil {
				return fmt.Errorf("delete %s: %s", d.ID, *d.Error)
			}
		}
		return nil
	})
	if err != nil {
		return classify("delete", err)
	}
	return nil
}

func (b *bitwardenClient) Close() error {
	b.inner.Close()
	return nil
}

func projectIDs(write SecretWrite) []string {
	if write.ProjectID == "" {
		return nil
	}
	return []string{write.ProjectID}
}

func secretFromResponse(resp *sdk.SecretResponse) *Secret {
	s := &Secret{
		ID:             resp.ID,
		OrganizationID: resp.OrganizationID,
		Key:            resp.Key,
		Value:          resp.Value,
		Note:           resp.Note,
		CreationDate:   resp.CreationDate.Format(time.RFC3339),
		RevisionDate:   resp.RevisionDate.Format(time.RFC3339),
	}
	if resp.ProjectID != nil {
		s.ProjectID = *resp.ProjectID
	}
	return s
}
