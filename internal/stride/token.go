package stride

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// tokenRefreshSkew is subtracted from the reported token lifetime so a
// token is refreshed a minute before it actually expires.
const tokenRefreshSkew = 60 * time.Second

// tokenCache holds the single client-credentials access token for the
// process and refreshes it near expiry. At most one token request is in
// flight at any time: concurrent callers during a refresh wait for the
// in-flight attempt and share its outcome, whether it succeeded or
// failed.
type tokenCache struct {
	clientID     string
	clientSecret string
	authBaseURL  string
	audience     string
	httpClient   *http.Client
	logger       *slog.Logger

	mu       sync.Mutex
	value    string
	expiry   time.Time
	inflight *refreshAttempt
}

// refreshAttempt is a single token request shared by every caller that
// arrives while it is running. done is closed once value/err are set.
type refreshAttempt struct {
	done  chan struct{}
	value string
	err   error
}

func newTokenCache(clientID, clientSecret, authBaseURL, audience string, httpClient *http.Client, logger *slog.Logger) *tokenCache {
	return &tokenCache{
		clientID:     clientID,
		clientSecret: clientSecret,
		authBaseURL:  authBaseURL,
		audience:     audience,
		httpClient:   httpClient,
		logger:       logger,
	}
}

// token returns a valid access token, refreshing it if necessary.
// Callers that arrive while a refresh is running wait for that attempt
// and receive its result, so a failing refresh answers every waiter with
// the same error instead of each issuing its own request.
func (t *tokenCache) token(ctx context.Context) (string, error) {
	t.mu.Lock()
	if t.value != "" && time.Now().Before(t.expiry) {
		value := t.value
		t.mu.Unlock()
		return value, nil
	}

	if attempt := t.inflight; attempt != nil {
		t.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.value, attempt.err
		case <-ctx.Done():
			return "", &AuthError{Op: "getAccessToken", Err: ctx.Err()}
		}
	}

	attempt := &refreshAttempt{done: make(chan struct{})}
	t.inflight = attempt
	t.mu.Unlock()

	value, expiresIn, err := t.fetch(ctx)

	t.mu.Lock()
	if err == nil {
		t.value = value
		t.expiry = time.Now().Add(time.Duration(expiresIn)*time.Second - tokenRefreshSkew)
	}
	// A failed attempt is never cached; clearing inflight lets the next
	// call retry
	t.inflight = nil
	t.mu.Unlock()

	attempt.value = value
	attempt.err = err
	close(attempt.done)

	if err != nil {
		return "", err
	}

	t.logger.Debug("Access token refreshed",
		"component", "stride",
		"expires_in", expiresIn,
	)

	return value, nil
}

// fetch performs the client-credentials grant against the auth endpoint.
func (t *tokenCache) fetch(ctx context.Context) (string, int, error) {
	reqBody := struct {
		GrantType    string `json:"grant_type"`
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		Audience     string `json:"audience"`
	}{
		GrantType:    "client_credentials",
		ClientID:     t.clientID,
		ClientSecret: t.clientSecret,
		Audience:     t.audience,
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, &AuthError{Op: "getAccessToken", Err: fmt.Errorf("failed to marshal token request: %w", err)}
	}

	url := t.authBaseURL + "/oauth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", 0, &AuthError{Op: "getAccessToken", Err: fmt.Errorf("failed to create token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", 0, &AuthError{Op: "getAccessToken", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &AuthError{Op: "getAccessToken", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &AuthError{Op: "getAccessToken", Status: resp.StatusCode, Body: string(respBody)}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", 0, &AuthError{Op: "getAccessToken", Err: fmt.Errorf("failed to parse token response: %w", err)}
	}
	if tokenResp.AccessToken == "" {
		return "", 0, &AuthError{Op: "getAccessToken", Status: resp.StatusCode, Body: string(respBody)}
	}

	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}
