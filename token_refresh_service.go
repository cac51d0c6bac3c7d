package mcpauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
	"github.com/connectkit/mcpauth/internal/crypto"
	"github.com/connectkit/mcpauth/internal/metrics"
)

const (
	// DefaultTokenExpiryBuffer is the look-ahead applied when deciding
	// whether a token is close enough to expiry to refresh.
	DefaultTokenExpiryBuffer = 5 * time.Minute

	// defaultHTTPTimeout bounds every token-endpoint request. There is
	// no infinite wait.
	defaultHTTPTimeout = 10 * time.Second

	// maxTokenResponseBytes caps how much of a provider response is read.
	maxTokenResponseBytes = 1 << 20
)

// TokenServiceOptions configures the TokenService.
type TokenServiceOptions struct {
	Tokens    domain.TokenRepository
	Providers domain.ProviderConfigRepository
	Ownership domain.OwnershipResolver
	Headers   domain.HeaderCache
	Encryptor *crypto.Encryptor

	// Locks is optional. When set, refreshes for the same server are
	// serialized best-effort; the mark-before-send write remains the
	// authoritative race guard either way.
	Locks *RefreshLockService

	// HTTPClient overrides the default client. A zero-timeout client is
	// given the default timeout.
	HTTPClient *http.Client

	// ExpiryBuffer overrides DefaultTokenExpiryBuffer.
	ExpiryBuffer time.Duration

	// AllowPrivateEndpoints disables the private-address SSRF checks for
	// token endpoints. Test-only.
	AllowPrivateEndpoints bool
}

// TokenService is the token-lifecycle state machine. Every outbound call
// to a connected MCP server passes through ValidateAndRefreshToken first.
type TokenService struct {
	tokens       domain.TokenRepository
	providers    domain.ProviderConfigRepository
	ownership    domain.OwnershipResolver
	headers      domain.HeaderCache
	encryptor    *crypto.Encryptor
	locks        *RefreshLockService
	httpClient   *http.Client
	expiryBuffer time.Duration
	allowPrivate bool
}

// NewTokenService validates the collaborators and builds the service.
func NewTokenService(opts TokenServiceOptions) (*TokenService, error) {
	if opts.Tokens == nil {
		return nil, mcperrors.NewConfigurationError("token repository is required")
	}
	if opts.Providers == nil {
		return nil, mcperrors.NewConfigurationError("provider config repository is required")
	}
	if opts.Ownership == nil {
		return nil, mcperrors.NewConfigurationError("ownership resolver is required")
	}
	if opts.Headers == nil {
		return nil, mcperrors.NewConfigurationError("header cache is required")
	}
	if opts.Encryptor == nil {
		return nil, mcperrors.NewConfigurationError("encryptor is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultHTTPTimeout
	}

	buffer := opts.ExpiryBuffer
	if buffer <= 0 {
		buffer = DefaultTokenExpiryBuffer
	}

	return &TokenService{
		tokens:       opts.Tokens,
		providers:    opts.Providers,
		ownership:    opts.Ownership,
		headers:      opts.Headers,
		encryptor:    opts.Encryptor,
		locks:        opts.Locks,
		httpClient:   client,
		expiryBuffer: buffer,
		allowPrivate: opts.AllowPrivateEndpoints,
	}, nil
}

// IsTokenExpired reports whether the stored token for a server is past, or
// within the look-ahead buffer of, its expiry. A token without a recorded
// expiry never expires; an absent record reports false, not an error.
func (s *TokenService) IsTokenExpired(ctx context.Context, serverID string) (bool, error) {
	record, err := s.tokens.GetToken(ctx, serverID)
	if err != nil {
		if mcperrors.IsKind(err, mcperrors.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.withinExpiryBuffer(record), nil
}

// ValidateAndRefreshToken is the gate every outbound MCP call must pass.
// The ownership check runs first: a caller presenting its own valid
// session with somebody else's server identifier must never ride the
// stored credential. An unexpired token is a no-op fast path; otherwise
// the refresh engine takes over.
func (s *TokenService) ValidateAndRefreshToken(ctx context.Context, serverID, userID string) (bool, error) {
	if err := s.checkOwnership(ctx, serverID, userID); err != nil {
		return false, err
	}

	expired, err := s.IsTokenExpired(ctx, serverID)
	if err != nil {
		return false, err
	}
	if !expired {
		return true, nil
	}

	return s.RefreshOAuthToken(ctx, serverID, userID)
}

// RefreshOAuthToken performs the refresh-token exchange with OAuth 2.1
// rotation and reuse-detection semantics. See the step comments for the
// ordering guarantees; in particular the used-marker write must be durable
// before the exchange request is issued (mark-before-send).
func (s *TokenService) RefreshOAuthToken(ctx context.Context, serverID, userID string) (bool, error) {
	// Ownership is re-validated here because this method is also called
	// directly, not only through the gate.
	if err := s.checkOwnership(ctx, serverID, userID); err != nil {
		return false, err
	}

	record, err := s.tokens.GetToken(ctx, serverID)
	if err != nil {
		if mcperrors.IsKind(err, mcperrors.KindNotFound) {
			return false, mcperrors.NewNoRefreshToken(serverID)
		}
		return false, err
	}
	if !record.HasRefreshToken() {
		return false, mcperrors.NewNoRefreshToken(serverID)
	}

	// Reuse detection. A used-marker that is already set means this
	// refresh token was consumed before: proof of leakage or replay.
	// Every token for the server is revoked, not just this request.
	if record.RefreshTokenUsedAt != nil {
		return false, s.revokeOnReuse(ctx, serverID)
	}

	// Refresh tokens are consumed as rarely as correctness allows; a
	// token still outside the expiry buffer keeps its rotation window.
	if !s.withinExpiryBuffer(record) {
		return true, nil
	}

	cfg, err := s.providers.GetProviderConfig(ctx, serverID)
	if err != nil {
		if mcperrors.IsKind(err, mcperrors.KindNotFound) {
			return false, mcperrors.NewConfigurationError("no oauth provider config for server " + serverID)
		}
		return false, err
	}
	if cfg.TokenEndpoint == "" {
		return false, mcperrors.NewConfigurationError("provider config for server " + serverID + " has no token endpoint")
	}
	endpoint, err := ValidateURLForSSRF(cfg.TokenEndpoint, s.allowPrivate)
	if err != nil {
		return false, err
	}

	providerLabel := cfg.Provider.String()
	start := time.Now()
	defer func() {
		metrics.TokenRefreshDuration.WithLabelValues(providerLabel).Observe(time.Since(start).Seconds())
	}()

	if s.locks != nil {
		owner, acquired, lockErr := s.locks.Acquire(ctx, serverID)
		if lockErr != nil {
			return false, lockErr
		}
		if !acquired {
			return false, mcperrors.NewRefreshInProgress(serverID)
		}
		defer s.locks.Release(ctx, serverID, owner)
	}

	// Mark-before-send: record the refresh token as spent before the
	// network request goes out. Two racing refreshes cannot both redeem
	// the same token; the loser observes the mark and lands in the reuse
	// path above. The conditional update makes the mark atomic.
	marked, err := s.tokens.MarkRefreshTokenUsed(ctx, serverID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if !marked {
		// A concurrent refresh marked the token between our read and
		// this write. Per OAuth 2.1 this duplicate consumption attempt
		// is treated as reuse.
		return false, s.revokeOnReuse(ctx, serverID)
	}

	refreshToken, err := s.encryptor.Decrypt(*record.RefreshTokenEncrypted)
	if err != nil {
		return false, mcperrors.NewConfigurationError("stored refresh token cannot be decrypted: " + err.Error())
	}

	resp, err := s.exchangeRefreshToken(ctx, cfg, endpoint, refreshToken)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(providerLabel, metrics.StatusFailure).Inc()
		log.Error().Err(err).
			Str("server_id", serverID).
			Str("provider", providerLabel).
			Msg("Token refresh exchange failed")
		// Retry policy belongs to the caller; no retry loop here.
		return false, err
	}

	if err := s.storeRotatedTokens(ctx, serverID, record, resp); err != nil {
		metrics.TokenRefreshTotal.WithLabelValues(providerLabel, metrics.StatusFailure).Inc()
		return false, err
	}

	metrics.TokenRefreshTotal.WithLabelValues(providerLabel, metrics.StatusSuccess).Inc()
	log.Info().
		Str("server_id", serverID).
		Str("provider", providerLabel).
		Msg("OAuth token refreshed")
	return true, nil
}

// RevokeTokens deletes every token record for a server and drops its
// cached Authorization header. Used for explicit revocation.
func (s *TokenService) RevokeTokens(ctx context.Context, serverID string) error {
	if _, err := s.tokens.DeleteTokensForServer(ctx, serverID); err != nil {
		return err
	}
	s.headers.DeleteAuthorization(serverID)
	return nil
}

func (s *TokenService) checkOwnership(ctx context.Context, serverID, userID string) error {
	owner, err := s.ownership.ResolveOwner(ctx, serverID)
	if err != nil {
		return err
	}
	if owner != userID {
		metrics.SecurityEvent(metrics.ViolationUserMismatch, metrics.SeverityWarning)
		log.Warn().
			Str("server_id", serverID).
			Msg("Token access rejected: caller does not own server connection")
		return mcperrors.NewOwnershipViolation(serverID)
	}
	return nil
}

func (s *TokenService) withinExpiryBuffer(record *domain.OAuthTokenRecord) bool {
	if record.ExpiresAt == nil {
		return false
	}
	return time.Now().Add(s.expiryBuffer).After(*record.ExpiresAt)
}

func (s *TokenService) revokeOnReuse(ctx context.Context, serverID string) error {
	providerLabel := "unknown"
	if cfg, err := s.providers.GetProviderConfig(ctx, serverID); err == nil {
		providerLabel = cfg.Provider.String()
	}

	deleted, err := s.tokens.DeleteTokensForServer(ctx, serverID)
	if err != nil {
		log.Error().Err(err).Str("server_id", serverID).Msg("Failed to revoke tokens after reuse detection")
		return err
	}
	s.headers.DeleteAuthorization(serverID)

	metrics.TokenRefreshTotal.WithLabelValues(providerLabel, metrics.StatusReuseDetected).Inc()
	metrics.AuditEventsTotal.WithLabelValues("refresh_token_reuse", metrics.SeverityCritical).Inc()
	log.Error().
		Str("server_id", serverID).
		Str("provider", providerLabel).
		Int64("tokens_revoked", deleted).
		Msg("Refresh token reuse detected, all tokens for server revoked")
	return mcperrors.NewReuseDetected(serverID)
}

// tokenEndpointResponse is the JSON body of a successful token exchange.
type tokenEndpointResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func (s *TokenService) exchangeRefreshToken(ctx context.Context, cfg *domain.OAuthProviderConfig, endpoint *url.URL, refreshToken string) (*tokenEndpointResponse, error) {
	form := url.Values{}
	form.Set("grant_type", domain.GrantRefreshToken.String())
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", cfg.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, mcperrors.NewNetworkError("build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	// Confidential-client semantics: prefer HTTP Basic over placing the
	// secret in the form body, keeping it out of request logs.
	if cfg.ClientSecretEncrypted != "" {
		secret, err := s.encryptor.Decrypt(cfg.ClientSecretEncrypted)
		if err != nil {
			return nil, mcperrors.NewConfigurationError("client secret cannot be decrypted: " + err.Error())
		}
		req.SetBasicAuth(cfg.ClientID, secret)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, mcperrors.NewNetworkError("token endpoint request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return nil, mcperrors.NewNetworkError("read token response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mcperrors.NewNetworkError(
			fmt.Sprintf("token endpoint returned status %d", resp.StatusCode), nil)
	}

	var tokenResp tokenEndpointResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, mcperrors.NewNetworkError("decode token response", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, mcperrors.NewNetworkError("token response has no access_token", nil)
	}
	return &tokenResp, nil
}

// storeRotatedTokens persists the rotated credential material and rewrites
// the cached live Authorization header so in-flight connections pick up
// the new token. The used-marker is cleared on every successful refresh:
// a provider that never rotates its refresh token keeps a usable one, and
// reuse detection fires only on genuinely duplicate consumption.
func (s *TokenService) storeRotatedTokens(ctx context.Context, serverID string, previous *domain.OAuthTokenRecord, resp *tokenEndpointResponse) error {
	accessEnc, err := s.encryptor.Encrypt(resp.AccessToken)
	if err != nil {
		return mcperrors.NewConfigurationError("encrypt access token: " + err.Error())
	}

	// Some providers do not rotate on every exchange; keep the previous
	// refresh token when the response omits one.
	refreshEnc := previous.RefreshTokenEncrypted
	if resp.RefreshToken != "" {
		enc, err := s.encryptor.Encrypt(resp.RefreshToken)
		if err != nil {
			return mcperrors.NewConfigurationError("encrypt refresh token: " + err.Error())
		}
		refreshEnc = &enc
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if resp.ExpiresIn > 0 {
		t := now.Add(time.Duration(resp.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	updated := &domain.OAuthTokenRecord{
		ServerID:              serverID,
		AccessTokenEncrypted:  accessEnc,
		RefreshTokenEncrypted: refreshEnc,
		ExpiresAt:             expiresAt,
		RefreshTokenUsedAt:    nil,
		UpdatedAt:             now,
	}
	if err := s.tokens.UpsertToken(ctx, updated); err != nil {
		return err
	}

	s.headers.SetAuthorization(serverID, formatAuthorizationHeader(resp.TokenType, resp.AccessToken))
	return nil
}

// formatAuthorizationHeader normalizes the provider's token_type to title
// case per RFC 6750 and formats the header value.
func formatAuthorizationHeader(tokenType, accessToken string) string {
	return normalizeTokenType(tokenType) + " " + accessToken
}

func normalizeTokenType(tokenType string) string {
	if tokenType == "" {
		return "Bearer"
	}
	return strings.ToUpper(tokenType[:1]) + strings.ToLower(tokenType[1:])
}
