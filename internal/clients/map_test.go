package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameontext/mediator/internal/domain"
)

func mapServer(t *testing.T, hits *atomic.Int64, sites map[string]domain.Site) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /map/v1/sites/{id}", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		site, ok := sites[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(site)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestResolveSiteCachesWithinTTL(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := mapServer(t, &hits, map[string]domain.Site{
		"R1": {ID: "R1", Info: &domain.RoomInfo{Name: "r1", FullName: "Room One"}},
	})
	c := NewMapClient(server.URL, nil, time.Minute)

	ctx := context.Background()
	site, err := c.ResolveSite(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "Room One", site.Info.FullName)

	_, err = c.ResolveSite(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestResolveSiteNotFound(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := mapServer(t, &hits, nil)
	c := NewMapClient(server.URL, nil, time.Minute)

	_, err := c.ResolveSite(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}

func TestResolveExitFollowsTheDoor(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	server := mapServer(t, &hits, map[string]domain.Site{
		"R1": {ID: "R1", Exits: &domain.Exits{N: &domain.Exit{ID: "R2"}}},
		"R2": {ID: "R2", Info: &domain.RoomInfo{Name: "r2"}},
	})
	c := NewMapClient(server.URL, nil, time.Minute)

	ctx := context.Background()
	site, err := c.ResolveExit(ctx, "R1", domain.North)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("R2"), site.ID)

	_, err = c.ResolveExit(ctx, "R1", domain.South)
	assert.ErrorIs(t, err, domain.ErrSiteNotFound)
}

func TestRequestsCarrySignedHeader(t *testing.T) {
	t.Parallel()

	signer := NewSigner("map-secret")
	var seen atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get(signedHeader))
		json.NewEncoder(w).Encode(domain.Site{ID: "R1"})
	}))
	t.Cleanup(server.Close)

	c := NewMapClient(server.URL, signer, time.Minute)
	_, err := c.ResolveSite(context.Background(), "R1")
	require.NoError(t, err)

	token, _ := seen.Load().(string)
	require.NotEmpty(t, token)
	subject, err := signer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "mediator", subject)
}

func TestDeleteSiteForwardsOwnerAndInvalidatesCache(t *testing.T) {
	t.Parallel()

	var owner atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /map/v1/sites/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(domain.Site{ID: domain.RoomID(r.PathValue("id"))})
	})
	mux.HandleFunc("DELETE /map/v1/sites/{id}", func(w http.ResponseWriter, r *http.Request) {
		owner.Store(r.Header.Get("gameon-owner"))
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := NewMapClient(server.URL, nil, time.Minute)
	ctx := context.Background()

	_, err := c.ResolveSite(ctx, "R1")
	require.NoError(t, err)

	require.NoError(t, c.DeleteSite(ctx, "R1", "u1"))
	assert.Equal(t, "u1", owner.Load())

	c.mu.Lock()
	_, cached := c.cache["R1"]
	c.mu.Unlock()
	assert.False(t, cached)
}

func TestListSitesForOwner(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", r.URL.Query().Get("owner"))
		json.NewEncoder(w).Encode([]domain.Site{{ID: "mine"}, {ID: "also-mine"}})
	}))
	t.Cleanup(server.Close)

	c := NewMapClient(server.URL, nil, time.Minute)
	sites, err := c.ListSitesForOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, sites, 2)
}
