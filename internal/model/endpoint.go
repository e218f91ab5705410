package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EndpointType string

const (
	EndpointTypeWebhook           EndpointType = "webhook"
	EndpointTypeAnsible           EndpointType = "ansible"
	EndpointTypeEmailSubscription EndpointType = "email_subscription"
	EndpointTypeDrawer            EndpointType = "drawer"
	EndpointTypeCamel             EndpointType = "camel"
	EndpointTypePagerDuty         EndpointType = "pagerduty"
)

// Camel subtypes handled by the async connector services.
const (
	SubTypeSlack      = "slack"
	SubTypeTeams      = "teams"
	SubTypeGoogleChat = "google_chat"
	SubTypeServiceNow = "servicenow"
	SubTypeSplunk     = "splunk"
)

type AuthenticationType string

const (
	AuthenticationSecretToken AuthenticationType = "SECRET_TOKEN"
	AuthenticationBearer      AuthenticationType = "BEARER"
)

// Authentication is a late-bound reference to a credential held by the secret store.
type Authentication struct {
	Type     AuthenticationType `json:"type"`
	SecretID int64              `json:"secretId"`
}

type WebhookProperties struct {
	URL                    string          `json:"url"`
	Method                 string          `json:"method"`
	DisableSSLVerification bool            `json:"disable_ssl_verification"`
	Authentication         *Authentication `json:"authentication,omitempty"`
}

type CamelProperties struct {
	URL                    string            `json:"url"`
	DisableSSLVerification bool              `json:"disable_ssl_verification"`
	Authentication         *Authentication   `json:"authentication,omitempty"`
	Extras                 map[string]string `json:"extras,omitempty"`
}

type PagerDutyProperties struct {
	Severity       string          `json:"severity"`
	Authentication *Authentication `json:"authentication,omitempty"`
}

// SystemSubscriptionProperties back the recipient-based endpoints (email, drawer).
type SystemSubscriptionProperties struct {
	GroupID           *uuid.UUID `json:"group_id,omitempty"`
	OnlyAdmins        bool       `json:"only_admins"`
	IgnorePreferences bool       `json:"ignore_preferences"`
	Digest            bool       `json:"digest"`
}

// EndpointProperties is a tagged union: exactly one variant is set, matching Endpoint.Type.
type EndpointProperties struct {
	Webhook   *WebhookProperties
	Camel     *CamelProperties
	PagerDuty *PagerDutyProperties
	System    *SystemSubscriptionProperties
}

type Endpoint struct {
	ID           uuid.UUID          `json:"id"`
	OrgID        string             `json:"org_id"`
	AccountID    string             `json:"account_id,omitempty"`
	Name         string             `json:"name"`
	Type         EndpointType       `json:"type"`
	SubType      string             `json:"sub_type,omitempty"`
	Enabled      bool               `json:"enabled"`
	ServerErrors int                `json:"server_errors"`
	Properties   EndpointProperties `json:"-"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Connector is the name of the downstream connector service for this endpoint.
func (e Endpoint) Connector() string {
	if e.SubType != "" {
		return e.SubType
	}
	return strings.ToLower(string(e.Type))
}

// RecipientSettings derives the recipient specification of a system subscription endpoint.
func (e Endpoint) RecipientSettings() (RecipientSettings, bool) {
	if e.Properties.System == nil {
		return RecipientSettings{}, false
	}
	p := e.Properties.System
	return NewRecipientSettings(p.OnlyAdmins, p.IgnorePreferences, p.GroupID, nil), true
}

// DecodeEndpointProperties decodes the stored JSON properties into the variant matching t.
func DecodeEndpointProperties(t EndpointType, raw []byte) (EndpointProperties, error) {
	var props EndpointProperties
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var target any
	switch t {
	case EndpointTypeWebhook, EndpointTypeAnsible:
		props.Webhook = &WebhookProperties{}
		target = props.Webhook
	case EndpointTypeCamel:
		props.Camel = &CamelProperties{}
		target = props.Camel
	case EndpointTypePagerDuty:
		props.PagerDuty = &PagerDutyProperties{}
		target = props.PagerDuty
	case EndpointTypeEmailSubscription, EndpointTypeDrawer:
		props.System = &SystemSubscriptionProperties{}
		target = props.System
	default:
		return EndpointProperties{}, fmt.Errorf("unknown endpoint type %q", t)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return EndpointProperties{}, fmt.Errorf("decoding %s properties: %w", t, err)
	}
	return props, nil
}

// EncodeEndpointProperties is the inverse of DecodeEndpointProperties.
func EncodeEndpointProperties(p EndpointProperties) ([]byte, error) {
	switch {
	case p.Webhook != nil:
		return json.Marshal(p.Webhook)
	case p.Camel != nil:
		return json.Marshal(p.Camel)
	case p.PagerDuty != nil:
		return json.Marshal(p.PagerDuty)
	case p.System != nil:
		return json.Marshal(p.System)
	}
	return []byte("{}"), nil
}
