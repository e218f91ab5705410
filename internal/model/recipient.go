package model

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// RecipientSettings is a value object: two settings with the same fields are interchangeable.
// Users is kept sorted and lowercased so that Key is canonical.
type RecipientSettings struct {
	AdminsOnly            bool
	IgnoreUserPreferences bool
	GroupID               *uuid.UUID
	Users                 []string
}

func NewRecipientSettings(adminsOnly, ignorePreferences bool, groupID *uuid.UUID, users []string) RecipientSettings {
	normalized := make([]string, 0, len(users))
	for _, u := range users {
		u = strings.ToLower(strings.TrimSpace(u))
		if u != "" {
			normalized = append(normalized, u)
		}
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	return RecipientSettings{
		AdminsOnly:            adminsOnly,
		IgnoreUserPreferences: ignorePreferences,
		GroupID:               groupID,
		Users:                 normalized,
	}
}

// Key is the canonical identity of the settings.
func (s RecipientSettings) Key() string {
	var b strings.Builder
	if s.AdminsOnly {
		b.WriteString("admins|")
	} else {
		b.WriteString("all|")
	}
	if s.IgnoreUserPreferences {
		b.WriteString("ignore|")
	} else {
		b.WriteString("prefs|")
	}
	if s.GroupID != nil {
		b.WriteString(s.GroupID.String())
	}
	b.WriteString("|")
	b.WriteString(strings.Join(s.Users, ","))
	return b.String()
}

// CoversOrg reports whether the settings target every user of the org.
func (s RecipientSettings) CoversOrg() bool {
	return !s.AdminsOnly && s.GroupID == nil
}

// ExplicitOnly is the "notify exactly these users" form.
func (s RecipientSettings) ExplicitOnly() bool {
	return len(s.Users) > 0 && !s.AdminsOnly && s.GroupID == nil
}

// UniqueSettings drops settings whose Key was already seen, keeping input order.
func UniqueSettings(in []RecipientSettings) []RecipientSettings {
	seen := make(map[string]struct{}, len(in))
	out := make([]RecipientSettings, 0, len(in))
	for _, s := range in {
		k := s.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Active   bool   `json:"is_active"`
	Admin    bool   `json:"is_org_admin"`
}

// Key is the identity of a user: usernames compare case-insensitively.
func (u User) Key() string {
	return strings.ToLower(u.Username)
}

// SubscriptionType is the email delivery cadence a user subscribed to.
type SubscriptionType string

const (
	SubscriptionInstant SubscriptionType = "INSTANT"
	SubscriptionDaily   SubscriptionType = "DAILY"
	SubscriptionDrawer  SubscriptionType = "DRAWER"
)
