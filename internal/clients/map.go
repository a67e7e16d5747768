package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
)

const (
	signedHeader = "gameon-jwt"
	tokenTTL     = 5 * time.Minute
)

// MapClient talks to the directory service that resolves room ids to
// sites. Lookups are cached for a short TTL; the mediator re-resolves
// often enough that staleness self-heals.
type MapClient struct {
	base   string
	http   *http.Client
	signer *Signer
	ttl    time.Duration

	mu    sync.Mutex
	cache map[domain.RoomID]cachedSite
}

type cachedSite struct {
	site    *domain.Site
	expires time.Time
}

func NewMapClient(base string, signer *Signer, ttl time.Duration) *MapClient {
	return &MapClient{
		base:   base,
		http:   &http.Client{Timeout: 10 * time.Second},
		signer: signer,
		ttl:    ttl,
		cache:  make(map[domain.RoomID]cachedSite),
	}
}

func (c *MapClient) signed(req *http.Request) {
	if c.signer == nil {
		return
	}
	token, err := c.signer.Sign("mediator", tokenTTL)
	if err != nil {
		log.Warn().Err(err).Str("module", "clients.map").Msg("sign request")
		return
	}
	req.Header.Set(signedHeader, token)
}

// ResolveSite fetches the directory record for a room id.
func (c *MapClient) ResolveSite(ctx context.Context, id domain.RoomID) (*domain.Site, error) {
	c.mu.Lock()
	if entry, ok := c.cache[id]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.site, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/map/v1/sites/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return nil, err
	}
	c.signed(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("map lookup %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("map lookup %s: %w", id, domain.ErrSiteNotFound)
	default:
		return nil, fmt.Errorf("map lookup %s: unexpected status %d", id, resp.StatusCode)
	}

	var site domain.Site
	if err := json.NewDecoder(resp.Body).Decode(&site); err != nil {
		return nil, fmt.Errorf("map lookup %s: decode: %w", id, err)
	}

	c.mu.Lock()
	c.cache[id] = cachedSite{site: &site, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return &site, nil
}

// ResolveExit follows a named exit of a room to the target site. The
// current site is re-fetched so a freshly registered door is seen.
func (c *MapClient) ResolveExit(ctx context.Context, id domain.RoomID, dir domain.Direction) (*domain.Site, error) {
	site, err := c.ResolveSite(ctx, id)
	if err != nil {
		return nil, err
	}
	exit := site.Exits.Get(dir)
	if exit == nil {
		return nil, fmt.Errorf("exit %s from %s: %w", dir, id, domain.ErrSiteNotFound)
	}
	return c.ResolveSite(ctx, exit.ID)
}

// ListSitesForOwner backs the origin room's /listmyrooms command.
func (c *MapClient) ListSitesForOwner(ctx context.Context, owner string) ([]domain.Site, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/map/v1/sites?owner="+url.QueryEscape(owner), nil)
	if err != nil {
		return nil, err
	}
	c.signed(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list sites for %s: %w", owner, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list sites for %s: unexpected status %d", owner, resp.StatusCode)
	}

	var sites []domain.Site
	if err := json.NewDecoder(resp.Body).Decode(&sites); err != nil {
		return nil, fmt.Errorf("list sites for %s: decode: %w", owner, err)
	}
	return sites, nil
}

// DeleteSite backs the origin room's /deleteroom command. The directory
// enforces ownership; this just signs and forwards.
func (c *MapClient) DeleteSite(ctx context.Context, id domain.RoomID, owner string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/map/v1/sites/"+url.PathEscape(string(id)), nil)
	if err != nil {
		return err
	}
	c.signed(req)
	req.Header.Set("gameon-owner", owner)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("delete site %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
	case http.StatusNotFound:
		return fmt.Errorf("delete site %s: %w", id, domain.ErrSiteNotFound)
	default:
		return fmt.Errorf("delete site %s: unexpected status %d", id, resp.StatusCode)
	}

	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
	return nil
}
