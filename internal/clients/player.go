package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gameontext/mediator/internal/domain"
)

// PlayerClient talks to the player profile service that records where a
// player last was. The mediator reports transitions fire-and-forget; the
// service's answer is informational.
type PlayerClient struct {
	base   string
	http   *http.Client
	signer *Signer
}

func NewPlayerClient(base string, signer *Signer) *PlayerClient {
	return &PlayerClient{
		base:   base,
		http:   &http.Client{Timeout: 10 * time.Second},
		signer: signer,
	}
}

type locationUpdate struct {
	OldLocation domain.RoomID `json:"oldLocation"`
	NewLocation domain.RoomID `json:"newLocation"`
}

type locationReply struct {
	Location domain.RoomID `json:"location"`
}

// UpdateLocation records a room change and returns the location the
// profile service settled on.
func (c *PlayerClient) UpdateLocation(ctx context.Context, user domain.UserID, from, to domain.RoomID) (domain.RoomID, error) {
	body, err := json.Marshal(locationUpdate{OldLocation: from, NewLocation: to})
	if err != nil {
		return "", err
	}

	target := c.base + "/players/v1/accounts/" + url.PathEscape(string(user)) + "/location"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		token, err := c.signer.Sign(string(user), tokenTTL)
		if err == nil {
			req.Header.Set(signedHeader, token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("update location for %s: %w", user, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("update location for %s: unexpected status %d", user, resp.StatusCode)
	}

	var reply locationReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("update location for %s: decode: %w", user, err)
	}
	return reply.Location, nil
}
