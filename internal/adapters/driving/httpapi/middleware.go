package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/pipeboard-co/meta-ads-mcp/internal/core/domain"
	"github.com/pipeboard-co/meta-ads-mcp/internal/security/pat"
)

// relayKeyHeader carries a per-request relay-service key in hosted relay
// deployments. The Authorization header then holds the upstream Meta token.
const relayKeyHeader = "X-Pipeboard-Token"

type currentUserKey struct{}

// currentUser returns the tenant authenticated by an access key, or nil for
// anonymous and raw-bearer requests.
func currentUser(ctx context.Context) *domain.User {
	u, _ := ctx.Value(currentUserKey{}).(*domain.User)
	return u
}

// authenticate turns transport headers into the request's auth context.
//
// An access key ("pat_…" bearer) is verified against the store; on success
// the tenant's stored Meta token is loaded so downstream resolution sees it
// as a header-injected credential. A presented-but-invalid access key fails
// the request with 401 rather than downgrading to anonymous. A bearer
// without the key prefix is passed through as a raw upstream token, and the
// relay key header rides alongside either form.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ac := domain.AuthContext{RelayKey: r.Header.Get(relayKeyHeader)}

		if bearer := bearerToken(r); bearer != "" {
			if strings.HasPrefix(bearer, pat.TokenPrefix) {
				user, err := s.keys.Verify(ctx, bearer)
				if err != nil {
					s.logger.Warn("access key rejected",
						"prefix", pat.ExtractPrefix(bearer),
						"reason", keyRejectionReason(err))
					writeError(w, http.StatusUnauthorized, "invalid access key")
					return
				}
				ac.AccessKey = bearer
				ac.UserID = user.ID
				if tok, err := s.tokens.Get(ctx, user.ID, domain.ProviderMeta); err == nil {
					if tok.IsExpired() {
						s.logger.Warn("stored upstream token expired, not injecting",
							"user_id", user.ID, "provider", tok.Provider)
					} else {
						ac.UpstreamToken = tok.AccessToken
					}
				}
				ctx = context.WithValue(ctx, currentUserKey{}, user)
			} else {
				ac.UpstreamToken = bearer
			}
		}

		next.ServeHTTP(w, r.WithContext(domain.WithAuthContext(ctx, ac)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// keyRejectionReason maps verification failures to loggable labels without
// exposing to the caller whether the key ever existed.
func keyRejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrNotFound):
		return "unknown"
	default:
		return "error"
	}
}
