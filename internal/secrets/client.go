package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/retry"
	"notifications.app/engine/internal/svcauth"
)

// ErrUnsupportedAuthType is a permanent failure: the endpoint references an
// authentication scheme the connectors cannot apply.
var ErrUnsupportedAuthType = errors.New("unsupported authentication type")

const orgIDHeader = "x-rh-sources-org-id"

type Secret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store fetches endpoint credentials just before they are used.
type Store interface {
	Get(ctx context.Context, orgID string, secretID int64) (Secret, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	auth    svcauth.Authenticator
	retry   *retry.Client
}

func NewClient(baseURL string, httpClient *http.Client, auth svcauth.Authenticator, policy retry.Policy, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if auth == nil {
		auth = svcauth.None{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		auth:    auth,
		retry:   retry.NewClient("secrets", policy, retry.WithLogger(log)),
	}
}

func (c *Client) Get(ctx context.Context, orgID string, secretID int64) (Secret, error) {
	return retry.Call(ctx, c.retry, "get_secret", func(ctx context.Context) (Secret, error) {
		url := c.baseURL + "/internal/v2.0/secrets/" + strconv.FormatInt(secretID, 10)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Secret{}, fmt.Errorf("building secret request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set(orgIDHeader, orgID)
		if err := c.auth.Apply(ctx, req); err != nil {
			return Secret{}, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return Secret{}, err
		}
		if err := retry.CheckResponse(resp); err != nil {
			return Secret{}, err
		}
		defer resp.Body.Close()

		var s Secret
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return Secret{}, fmt.Errorf("decoding secret %d: %w", secretID, err)
		}
		return s, nil
	})
}

// Header resolves auth into the header the destination expects.
func Header(ctx context.Context, store Store, orgID string, auth *model.Authentication) (name, value string, err error) {
	if auth == nil {
		return "", "", nil
	}
	switch auth.Type {
	case model.AuthenticationSecretToken, model.AuthenticationBearer:
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedAuthType, auth.Type)
	}

	secret, err := store.Get(ctx, orgID, auth.SecretID)
	if err != nil {
		return "", "", fmt.Errorf("fetching secret %d: %w", auth.SecretID, err)
	}

	if auth.Type == model.AuthenticationBearer {
		return "Authorization", "Bearer " + secret.Password, nil
	}
	return "X-Insight-Token", secret.Password, nil
}
