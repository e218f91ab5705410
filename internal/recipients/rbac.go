package recipients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/retry"
	"notifications.app/engine/internal/svcauth"
)

const orgIDHeader = "x-rh-rbac-org-id"

// RBACClient reads org users and groups from the RBAC service.
type RBACClient struct {
	baseURL  string
	http     *http.Client
	auth     svcauth.Authenticator
	retry    *retry.Client
	limiter  *rate.Limiter
	pageSize int
}

type RBACOption func(*RBACClient)

func WithHTTPClient(c *http.Client) RBACOption {
	return func(r *RBACClient) {
		r.http = c
	}
}

func WithRateLimit(rps int) RBACOption {
	return func(r *RBACClient) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

func NewRBACClient(baseURL string, pageSize int, auth svcauth.Authenticator, policy retry.Policy, log *slog.Logger, opts ...RBACOption) *RBACClient {
	if pageSize <= 0 {
		pageSize = retry.DefaultPageSize
	}
	if auth == nil {
		auth = svcauth.None{}
	}
	c := &RBACClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     http.DefaultClient,
		auth:     auth,
		retry:    retry.NewClient("rbac", policy, retry.WithLogger(log)),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		pageSize: pageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rbacPrincipal struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	IsActive   bool   `json:"is_active"`
	IsOrgAdmin bool   `json:"is_org_admin"`
}

type rbacPage struct {
	Meta struct {
		Count int `json:"count"`
	} `json:"meta"`
	Data []rbacPrincipal `json:"data"`
}

type rbacGroup struct {
	UUID            uuid.UUID `json:"uuid"`
	PlatformDefault bool      `json:"platform_default"`
}

func (c *RBACClient) Users(ctx context.Context, orgID string, adminsOnly bool) ([]model.User, error) {
	seq := retry.FetchAll(ctx, c.retry, "principals", c.pageSize, func(ctx context.Context, cursor retry.Cursor) (retry.Page[model.User], error) {
		q := url.Values{}
		q.Set("org_id", orgID)
		q.Set("admin_only", strconv.FormatBool(adminsOnly))
		return c.principalsPage(ctx, orgID, "/api/rbac/v1/principals/", q, cursor)
	})
	users, err := retry.Collect(seq)
	return activeOnly(users), err
}

func (c *RBACClient) Group(ctx context.Context, orgID string, groupID uuid.UUID) (Group, error) {
	g, err := retry.Call(ctx, c.retry, "group", func(ctx context.Context) (rbacGroup, error) {
		var g rbacGroup
		err := c.get(ctx, orgID, "/api/rbac/v1/groups/"+groupID.String()+"/", nil, &g)
		return g, err
	})
	if err != nil {
		if retry.IsStatus(err, http.StatusNotFound) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	return Group{ID: groupID, PlatformDefault: g.PlatformDefault}, nil
}

func (c *RBACClient) GroupUsers(ctx context.Context, orgID string, groupID uuid.UUID) ([]model.User, error) {
	path := "/api/rbac/v1/groups/" + groupID.String() + "/principals/"
	seq := retry.FetchAll(ctx, c.retry, "group_principals", c.pageSize, func(ctx context.Context, cursor retry.Cursor) (retry.Page[model.User], error) {
		return c.principalsPage(ctx, orgID, path, url.Values{}, cursor)
	})
	users, err := retry.Collect(seq)
	if err != nil && retry.IsStatus(err, http.StatusNotFound) {
		return nil, ErrGroupNotFound
	}
	return activeOnly(users), err
}

func activeOnly(users []model.User) []model.User {
	active := users[:0]
	for _, u := range users {
		if u.Active {
			active = append(active, u)
		}
	}
	return active
}

// principalsPage fetches one page. More pages may follow while the provider
// returns as many principals as requested.
func (c *RBACClient) principalsPage(ctx context.Context, orgID, path string, q url.Values, cursor retry.Cursor) (retry.Page[model.User], error) {
	q.Set("offset", strconv.Itoa(cursor.Offset))
	q.Set("limit", strconv.Itoa(cursor.Limit))

	var page rbacPage
	if err := c.get(ctx, orgID, path, q, &page); err != nil {
		return retry.Page[model.User]{}, err
	}

	users := make([]model.User, 0, len(page.Data))
	for _, p := range page.Data {
		users = append(users, model.User{
			Username: p.Username,
			Email:    p.Email,
			Active:   p.IsActive,
			Admin:    p.IsOrgAdmin,
		})
	}
	return retry.Page[model.User]{Items: users}, nil
}

func (c *RBACClient) get(ctx context.Context, orgID, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building rbac request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(orgIDHeader, orgID)
	if err := c.auth.Apply(ctx, req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	if err := retry.CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding rbac response: %w", err)
	}
	return nil
}
