package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nmellis/casavox/pkg/realtime"
)

// tokenPrefix is the required prefix of an ephemeral connection credential.
// A grant without it is rejected before any transport is opened.
const tokenPrefix = "ek_"

// identityHints is the request body of POST /realtime/ephemeral-token. Both
// fields are optional: anonymous sessions are allowed.
type identityHints struct {
	UserID   string `json:"userId,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// tokenResponse is the wire shape of POST /realtime/ephemeral-token.
type tokenResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	ThreadID  string `json:"assistant_thread_id"`
	ExpiresIn int    `json:"expires_in"`
}

// MintToken exchanges identity hints for a short-lived connection credential
// plus session/thread identifiers.
//
// Transport failures wrap [realtime.ErrTokenAcquisition]; a credential that
// does not match the required format wraps [realtime.ErrCredentialFormat].
// Both are fatal for the current connect attempt.
func (c *Client) MintToken(ctx context.Context, userID, tenantID string) (realtime.TokenGrant, error) {
	hints := identityHints{UserID: userID, TenantID: tenantID}

	var resp tokenResponse
	if err := c.doJSON(ctx, "POST", "/realtime/ephemeral-token", hints, &resp); err != nil {
		return realtime.TokenGrant{}, fmt.Errorf("%w: %w", realtime.ErrTokenAcquisition, err)
	}

	if resp.Token == "" || !strings.HasPrefix(resp.Token, tokenPrefix) {
		return realtime.TokenGrant{}, fmt.Errorf("%w: token missing required %q prefix",
			realtime.ErrCredentialFormat, tokenPrefix)
	}

	return realtime.TokenGrant{
		Token:     resp.Token,
		SessionID: resp.SessionID,
		ThreadID:  resp.ThreadID,
		ExpiresIn: time.Duration(resp.ExpiresIn) * time.Second,
	}, nil
}
