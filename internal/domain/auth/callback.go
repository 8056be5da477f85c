package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// stateSeparator splits the provider name from the random part of an OAuth state value.
const stateSeparator = "."

// OAuthState builds a state value that carries the provider name back through the redirect.
func OAuthState(provider, random string) string {
	return provider + stateSeparator + random
}

// ParseFragment parses the URL fragment a provider appends to the callback URL.
// A leading "#" is tolerated. Missing token or state fields yield ErrMalformedCallback.
func ParseFragment(fragment string) (OAuthCallback, error) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return OAuthCallback{}, NewError(KindMalformedCallback, "callback fragment is empty")
	}
	vals, err := url.ParseQuery(fragment)
	if err != nil {
		return OAuthCallback{}, WrapError(err, KindMalformedCallback, "callback fragment is not form encoded")
	}

	cb := OAuthCallback{
		AccessToken: vals.Get("access_token"),
		IDToken:     vals.Get("id_token"),
		State:       vals.Get("state"),
		Error:       vals.Get("error"),
	}
	if cb.Error != "" {
		return cb, NewError(KindMalformedCallback, "provider returned error: "+cb.Error)
	}
	if cb.AccessToken == "" && cb.IDToken == "" {
		return cb, NewError(KindMalformedCallback, "callback fragment carries no token")
	}
	provider, _, ok := strings.Cut(cb.State, stateSeparator)
	if !ok || provider == "" {
		return cb, NewError(KindMalformedCallback, "callback state is missing or invalid")
	}
	cb.Provider = provider
	if raw := vals.Get("expires_in"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			return cb, NewError(KindMalformedCallback, "callback expires_in is invalid")
		}
		cb.ExpiresIn = n
	}
	return cb, nil
}

// Encode renders the callback back into fragment form, without the leading "#".
// The expected nonce is host-side state and is not encoded.
func (c OAuthCallback) Encode() string {
	vals := url.Values{}
	if c.AccessToken != "" {
		vals.Set("access_token", c.AccessToken)
	}
	if c.IDToken != "" {
		vals.Set("id_token", c.IDToken)
	}
	if c.State != "" {
		vals.Set("state", c.State)
	}
	if c.ExpiresIn > 0 {
		vals.Set("expires_in", strconv.Itoa(c.ExpiresIn))
	}
	if c.Error != "" {
		vals.Set("error", c.Error)
	}
	return vals.Encode()
}

// HasCallbackPayload reports whether fragment looks like a provider callback
// (token or error fields present) without validating it.
func HasCallbackPayload(fragment string) bool {
	vals, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(fragment), "#"))
	if err != nil {
		return false
	}
	return vals.Get("access_token") != "" || vals.Get("id_token") != "" || vals.Get("error") != ""
}

// FragmentFingerprint returns a stable digest of a fragment, used to detect duplicate callbacks.
func FragmentFingerprint(fragment string) string {
	sum := sha256.Sum256([]byte(strings.TrimPrefix(strings.TrimSpace(fragment), "#")))
	return hex.EncodeToString(sum[:])
}
