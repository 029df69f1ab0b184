package ordercloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthErrorKind classifies why a token exchange failed.
type AuthErrorKind string

const (
	// AuthKindTransport means the token endpoint could not be reached or
	// did not answer in time.
	AuthKindTransport AuthErrorKind = "transport"
	// AuthKindRejected means the endpoint answered and refused the
	// credentials or scope.
	AuthKindRejected AuthErrorKind = "rejected"
)

// AuthError is a fatal authentication failure. The run aborts on it.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authenticate (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("authenticate (%s): %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// AuthConfig holds the settings for a token exchange.
type AuthConfig struct {
	AuthURL      string
	ClientID     string
	ClientSecret string
	// Scope is the ordered role list; it is joined into a single scope
	// string on the wire.
	Scope   []string
	Timeout time.Duration
}

// platformErrors is the error payload shape the platform returns alongside
// (or instead of) the standard OAuth error fields.
type platformErrors struct {
	Errors []struct {
		ErrorCode string `json:"ErrorCode"`
		Message   string `json:"Message"`
	} `json:"Errors"`
}

// Authenticate exchanges back-office client credentials for a bearer token.
// It performs exactly one exchange; the caller hands the token to NewClient
// and no later stage re-authenticates.
func Authenticate(ctx context.Context, logger *zap.Logger, cfg AuthConfig) (string, error) {
	log := logger.Named("auth")
	log.Info("Authenticating back-office user",
		zap.String("auth_url", cfg.AuthURL),
		zap.String("client_id", cfg.ClientID),
		zap.Strings("scope", cfg.Scope),
	)

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL + "/oauth/token",
		Scopes:       cfg.Scope,
		// The platform expects credentials in the form body, not a Basic
		// header.
		AuthStyle: oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	tok, err := conf.Token(ctx)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			msg := rejectionMessage(retrieveErr)
			log.Error("Credentials rejected, confirm back-office user configuration",
				zap.String("message", msg))
			return "", &AuthError{Kind: AuthKindRejected, Message: msg, Err: err}
		}
		log.Error("Token endpoint unreachable", zap.Error(err))
		return "", &AuthError{Kind: AuthKindTransport, Err: err}
	}
	if tok.AccessToken == "" {
		return "", &AuthError{Kind: AuthKindRejected, Message: "token response carried no access token"}
	}

	log.Info("Authenticated", zap.Time("token_expiry", tok.Expiry))
	return tok.AccessToken, nil
}

// rejectionMessage extracts the most specific message available from a
// rejected exchange: the platform error payload if present, then the OAuth
// error description, then the raw status.
func rejectionMessage(err *oauth2.RetrieveError) string {
	var payload platformErrors
	if jsonErr := json.Unmarshal(err.Body, &payload); jsonErr == nil && len(payload.Errors) > 0 {
		return payload.Errors[0].Message
	}
	if err.ErrorDescription != "" {
		return err.ErrorDescription
	}
	if err.ErrorCode != "" {
		return err.ErrorCode
	}
	if err.Response != nil {
		return fmt.Sprintf("token endpoint returned HTTP %d", err.Response.StatusCode)
	}
	return "credentials rejected"
}
