package driven

import (
	"context"
	"encoding/json"
	"net/url"
)

// GraphClient performs HTTP requests against the Meta Graph API. The caller
// supplies the bearer token; the client never caches or resolves credentials
// itself.
type GraphClient interface {
	// Get performs a GET on the given Graph API path ("me/adaccounts",
	// "act_123/campaigns", ...). Fails with domain.ErrAuthInvalid on a
	// rejected token and domain.ErrRateLimited on throttling.
	Get(ctx context.Context, path, accessToken string, params url.Values) (json.RawMessage, error)

	// Post performs a POST with form-encoded params.
	Post(ctx context.Context, path, accessToken string, params url.Values) (json.RawMessage, error)
}
