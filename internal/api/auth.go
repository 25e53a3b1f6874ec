package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/spectra-gallery/spectra/internal/model"
)

const (
	loginFallback    = "Login failed. Invalid server response."
	missingToken     = "Access token not found in response."
	profileFallback  = "Failed to fetch user details."
	registerFallback = "Registration failed. Invalid server response."
)

// IssueToken exchanges a username and password for a bearer token at auth/token.
// The credentials travel as a form-encoded password grant.
func (c *Client) IssueToken(ctx context.Context, username, password string) (model.TokenResponse, error) {
	const op = "token"
	var result model.TokenResponse
	err := c.observe(ctx, op, func(ctx context.Context) (int, error) {
		conf := &oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  c.endpoint("auth/token", nil),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		rec := &exchangeRecorder{base: c.httpClient.Transport}
		hc := *c.httpClient
		hc.Transport = rec
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &hc)
		tok, err := conf.PasswordCredentialsToken(ctx, username, password)
		if err != nil {
			return tokenError(op, err, rec.status)
		}
		result = model.TokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType}
		return http.StatusOK, nil
	})
	return result, err
}

// exchangeRecorder remembers the status of the token response so a 2xx
// that oauth2 rejects can be told apart from a failed exchange.
type exchangeRecorder struct {
	base   http.RoundTripper
	status int
}

func (r *exchangeRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := r.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if resp != nil {
		r.status = resp.StatusCode
	}
	return resp, err
}

func tokenError(op string, err error, status int) (int, error) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		kind := AuthenticationFailed
		if status >= 500 {
			kind = NetworkOrServerError
		}
		return status, responseError(op, kind, status, retrieveErr.Body, loginFallback)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, &Error{Kind: NetworkOrServerError, Op: op, Message: transportMessage(err), Err: err}
	}
	// The server answered 2xx but oauth2 found no usable access_token in the body.
	if status >= 200 && status < 300 {
		return status, &Error{Kind: AuthenticationFailed, Op: op, Status: status, Message: missingToken, Err: err}
	}
	return status, &Error{Kind: NetworkOrServerError, Op: op, Status: status, Message: loginFallback, Err: err}
}

// CurrentUser resolves the profile behind token via users/me. A 401 is
// reported as SessionExpired.
func (c *Client) CurrentUser(ctx context.Context, token string) (model.User, error) {
	var user model.User
	err := c.do(ctx, request{
		op:       "users_me",
		method:   http.MethodGet,
		path:     "users/me",
		token:    token,
		fallback: profileFallback,
		classify: func(status int) Kind {
			if status == http.StatusUnauthorized {
				return SessionExpired
			}
			return NetworkOrServerError
		},
	}, &user)
	return user, err
}

// Register creates an account. It never issues a token.
func (c *Client) Register(ctx context.Context, reg model.Registration) (model.User, error) {
	var user model.User
	err := c.do(ctx, request{
		op:       "register",
		method:   http.MethodPost,
		path:     "auth/register",
		payload:  reg,
		fallback: registerFallback,
		classify: func(status int) Kind {
			if status >= 400 && status < 500 {
				return ValidationFailed
			}
			return NetworkOrServerError
		},
	}, &user)
	return user, err
}
