package recipients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"notifications.app/engine/common/logger"
	"notifications.app/engine/internal/model"
)

type PreferenceMode int

const (
	// OptIn keeps only users listed in Preferences.Usernames.
	OptIn PreferenceMode = iota
	// OptOut drops users listed in Preferences.Usernames.
	OptOut
)

func (m PreferenceMode) String() string {
	if m == OptOut {
		return "opt-out"
	}
	return "opt-in"
}

type Preferences struct {
	Mode      PreferenceMode
	Usernames []string
}

type Request struct {
	OrgID       string
	Settings    []model.RecipientSettings
	Preferences Preferences
}

type Resolver interface {
	Resolve(ctx context.Context, req Request) ([]model.User, error)
}

type resolver struct {
	directory Directory
	workers   int
	logger    *slog.Logger
}

func NewResolver(directory Directory, workers int, log *slog.Logger) Resolver {
	if workers < 1 {
		workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &resolver{directory: directory, workers: workers, logger: log}
}

func (r *resolver) Resolve(ctx context.Context, req Request) ([]model.User, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		OrgID:     &req.OrgID,
		Component: "notifications.recipients.resolver",
	})

	settings := Collapse(model.UniqueSettings(req.Settings))
	if len(settings) == 0 {
		return nil, nil
	}
	explicit := explicitUsers(req.Settings)
	prefs := toSet(req.Preferences.Usernames)

	memo := &fetchMemo{entries: map[fetchKey]*fetchEntry{}}
	results := make([][]model.User, len(settings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, s := range settings {
		g.Go(func() error {
			users, err := memo.get(gctx, fetchKeyOf(s), func(ctx context.Context) ([]model.User, error) {
				return r.fetch(ctx, req.OrgID, s)
			})
			if err != nil {
				return err
			}
			results[i] = applyPreferences(users, s, req.Preferences.Mode, prefs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolving recipients for org %s: %w", req.OrgID, err)
	}

	byKey := make(map[string]model.User)
	for _, users := range results {
		for _, u := range users {
			if explicit != nil {
				if _, ok := explicit[u.Key()]; !ok {
					continue
				}
			}
			if _, ok := byKey[u.Key()]; !ok {
				byKey[u.Key()] = u
			}
		}
	}

	out := make([]model.User, 0, len(byKey))
	for _, u := range byKey {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b model.User) int { return strings.Compare(a.Key(), b.Key()) })

	r.logger.DebugContext(ctx, "recipients resolved",
		"settings", len(settings),
		"mode", req.Preferences.Mode.String(),
		"users", len(out))
	return out, nil
}

func (r *resolver) fetch(ctx context.Context, orgID string, s model.RecipientSettings) ([]model.User, error) {
	if s.GroupID == nil {
		return r.directory.Users(ctx, orgID, s.AdminsOnly)
	}

	group, err := r.directory.Group(ctx, orgID, *s.GroupID)
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) {
			r.logger.WarnContext(ctx, "recipient group not found", "group_id", s.GroupID.String())
			return nil, nil
		}
		return nil, err
	}
	if group.PlatformDefault {
		return r.directory.Users(ctx, orgID, s.AdminsOnly)
	}

	users, err := r.directory.GroupUsers(ctx, orgID, *s.GroupID)
	if err != nil {
		return nil, err
	}
	if !s.AdminsOnly {
		return users, nil
	}
	admins := users[:0:0]
	for _, u := range users {
		if u.Admin {
			admins = append(admins, u)
		}
	}
	return admins, nil
}

// Collapse drops every setting already covered by an org-wide one. An org-wide
// setting covers another when it ignores preferences or the other does not.
func Collapse(settings []model.RecipientSettings) []model.RecipientSettings {
	ordered := slices.Clone(settings)
	slices.SortStableFunc(ordered, func(a, b model.RecipientSettings) int {
		return rank(a) - rank(b)
	})

	kept := make([]model.RecipientSettings, 0, len(ordered))
	for _, s := range ordered {
		covered := slices.ContainsFunc(kept, func(d model.RecipientSettings) bool {
			return d.CoversOrg() && (d.IgnoreUserPreferences || !s.IgnoreUserPreferences)
		})
		if !covered {
			kept = append(kept, s)
		}
	}
	return kept
}

func rank(s model.RecipientSettings) int {
	switch {
	case s.CoversOrg() && s.IgnoreUserPreferences:
		return 0
	case s.CoversOrg():
		return 1
	default:
		return 2
	}
}

// explicitUsers intersects every non-empty explicit username list, or returns
// nil when no setting names users.
func explicitUsers(settings []model.RecipientSettings) map[string]struct{} {
	var result map[string]struct{}
	for _, s := range settings {
		if len(s.Users) == 0 {
			continue
		}
		current := toSet(s.Users)
		if result == nil {
			result = current
			continue
		}
		for u := range result {
			if _, ok := current[u]; !ok {
				delete(result, u)
			}
		}
	}
	return result
}

func applyPreferences(users []model.User, s model.RecipientSettings, mode PreferenceMode, prefs map[string]struct{}) []model.User {
	if s.IgnoreUserPreferences {
		return users
	}
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		_, listed := prefs[u.Key()]
		if (mode == OptIn && listed) || (mode == OptOut && !listed) {
			out = append(out, u)
		}
	}
	return out
}

func toSet(usernames []string) map[string]struct{} {
	set := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		set[strings.ToLower(u)] = struct{}{}
	}
	return set
}

type fetchKey struct {
	group      string
	adminsOnly bool
}

func fetchKeyOf(s model.RecipientSettings) fetchKey {
	k := fetchKey{adminsOnly: s.AdminsOnly}
	if s.GroupID != nil {
		k.group = s.GroupID.String()
	}
	return k
}

type fetchEntry struct {
	once  sync.Once
	users []model.User
	err   error
}

// fetchMemo runs each distinct directory lookup once per resolution.
type fetchMemo struct {
	mu      sync.Mutex
	entries map[fetchKey]*fetchEntry
}

func (m *fetchMemo) get(ctx context.Context, key fetchKey, fetch func(ctx context.Context) ([]model.User, error)) ([]model.User, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &fetchEntry{}
		m.entries[key] = e
	}
	m.mu.Unlock()

	e.once.Do(func() {
		e.users, e.err = fetch(ctx)
	})
	return e.users, e.err
}
