package prefetch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/secretsgate/bws-rest-proxy/internal/testutil"
	"github.com/secretsgate/bws-rest-proxy/pkg/cache"
	"github.com/secretsgate/bws-rest-proxy/pkg/fetch"
	"github.com/secretsgate/bws-rest-proxy/pkg/session"
	"github.com/secretsgate/bws-rest-proxy/pkg/upstream"
)

const warmOrg = "org-1"

func newWarmerFixture(t *testing.T, secrets int) (*Warmer, *testutil.MockClient, *cache.Store) {
	t.Helper()

	client := testutil.NewMockClient()
	for i := 0; i < secrets; i++ {
		client.PutSecret(&upstream.Secret{
			ID:             fmt.Sprintf("sec-%d", i),
			OrganizationID: warmOrg,
			Key:            fmt.Sprintf("key-%d", i),
			Value:          fmt.Sprintf("value-%d", i),
		})
	}

	sessions := session.NewHolder(testutil.NewMockConnector(client), zerolog.Nop())
	store := cache.NewStore(cache.Config{DefaultTTL: time.Minute})
	coordinator := fetch.NewCoordinator(store, sessions, time.Second, zerolog.Nop())
	warmer := NewWarmer(coordinator, Config{OrganizationID: warmOrg, Concurrency: 3}, zerolog.Nop())
	return warmer, client, store
}

func TestWarmer_Warm(t *testing.T) {
	warmer, client, store := newWarmerFixture(t, 10)

	warmed, err := warmer.Warm(context.Background())
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if warmed != 10 {
		t.Errorf("warmed = %d, want 10", warmed)
	}
	// 10 secrets plus the listing itself.
	if store.Len() != 11 {
		t.Errorf("cache entries = %d, want 11", store.Len())
	}
	if client.GetCalls() != 10 {
		t.Errorf("upstream fetches = %d, want 10", client.GetCalls())
	}

	// A warmed entry serves reads without touching upstream again.
	if _, state := store.Lookup(cache.SecretKey(warmOrg, "sec-3"), 0); state != cache.Fresh {
		t.Errorf("warmed entry state = %v, want Fresh", state)
	}
}

func TestWarmer_EmptyOrganization(t *testing.T) {
	warmer, _, _ := newWarmerFixture(t, 0)

	warmed, err := warmer.Warm(context.Background())
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if warmed != 0 {
		t.Errorf("warmed = %d, want 0", warmed)
	}
}

func TestWarmer_ListFailure(t *testing.T) {
	warmer, client, _ := newWarmerFixture(t, 3)
	client.SetListError(upstream.NewError(upstream.ErrorClassTransient, "list", fmt.Errorf("backend down")))

	if _, err := warmer.Warm(context.Background()); err == nil {
		t.Fatal("expected error when the listing fails")
	}
}

func TestWarmer_FetchFailuresAreSkipped(t *testing.T) {
	warmer, client, _ := newWarmerFixture(t, 5)
	client.SetGetError(upstream.NewError(upstream.ErrorClassTransient, "get", fmt.Errorf("flaky")))

	// Individual fetch failures do not fail the warm-up.
	warmed, err := warmer.Warm(context.Background())
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if warmed != 0 {
		t.Errorf("warmed = %d, want 0", warmed)
	}
}

func TestWarmer_CancelledContext(t *testing.T) {
	warmer, _, _ := newWarmerFixture(t, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Warm must return promptly on a dead context instead of hanging.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = warmer.Warm(ctx)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Warm did not return on cancelled context")
	}
}
