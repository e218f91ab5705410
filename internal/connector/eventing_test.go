package connector_test

import (
	"context"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/model"
)

var _ = Describe("EventingConnector", func() {
	var (
		ctx       context.Context
		publisher *recordingPublisher
		payloads  *memoryPayloads
		endpoint  model.Endpoint
		historyID uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		publisher = &recordingPublisher{}
		payloads = &memoryPayloads{}
		historyID = uuid.New()
		endpoint = model.Endpoint{
			ID:      uuid.New(),
			OrgID:   "org-1",
			Type:    model.EndpointTypeCamel,
			SubType: model.SubTypeSlack,
			Enabled: true,
			Properties: model.EndpointProperties{Camel: &model.CamelProperties{
				URL:            "https://hooks.slack.example/T000",
				Extras:         map[string]string{"channel": "#alerts"},
				Authentication: &model.Authentication{Type: model.AuthenticationBearer, SecretID: 9},
			}},
		}
	})

	It("publishes the payload with delivery metadata and leaves the row pending", func() {
		c := connector.NewEventingConnector(publisher, payloads, 0, nil)

		result, err := c.Send(ctx, connector.Request{Event: testEvent(), Endpoint: endpoint, HistoryID: historyID})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusProcessing))
		Expect(publisher.messages).To(HaveLen(1))

		msg := publisher.messages[0]
		Expect(msg.ID).To(Equal(historyID.String()))
		Expect(msg.Connector).To(Equal("slack"))
		Expect(msg.Type).To(Equal("com.redhat.console.notification.toCamel.slack"))
		Expect(msg.Body).To(MatchJSON(`{
			"host": "web-1",
			"severity": "high",
			"org_id": "org-1",
			"notif-metadata": {
				"url": "https://hooks.slack.example/T000",
				"method": "POST",
				"trustAll": false,
				"type": "slack",
				"extras": {"channel": "#alerts"},
				"_originalId": "7a6c2a5e-3f4b-4d8e-9a1b-2c3d4e5f6a7b",
				"authentication": {"type": "BEARER", "secretId": 9}
			}
		}`))
		Expect(payloads.stored).To(BeEmpty())
	})

	It("stores an oversized payload and sends a reference instead", func() {
		event := testEvent()
		event.Payload = []byte(`{"blob":"` + strings.Repeat("x", 512) + `"}`)
		c := connector.NewEventingConnector(publisher, payloads, 256, nil)

		_, err := c.Send(ctx, connector.Request{Event: event, Endpoint: endpoint, HistoryID: historyID})

		Expect(err).NotTo(HaveOccurred())
		Expect(payloads.stored).To(HaveLen(1))
		Expect(payloads.stored[0].EventID).To(Equal(event.ID))
		Expect(string(payloads.stored[0].Contents)).To(ContainSubstring(`"notif-metadata"`))
		Expect(publisher.messages[0].Headers).To(HaveKeyWithValue(connector.PayloadHeader, event.ID.String()))
		Expect(publisher.messages[0].Body).To(MatchJSON(`{}`))
	})

	It("maps pagerduty severity into the metadata", func() {
		endpoint.Type = model.EndpointTypePagerDuty
		endpoint.SubType = ""
		endpoint.Properties = model.EndpointProperties{PagerDuty: &model.PagerDutyProperties{Severity: "critical"}}
		c := connector.NewEventingConnector(publisher, payloads, 0, nil)

		_, err := c.Send(ctx, connector.Request{Event: testEvent(), Endpoint: endpoint, HistoryID: historyID})

		Expect(err).NotTo(HaveOccurred())
		Expect(publisher.messages[0].Connector).To(Equal("pagerduty"))
		Expect(string(publisher.messages[0].Body)).To(ContainSubstring(`"severity":"critical"`))
	})

	It("returns an internal failure when publishing fails", func() {
		publisher.err = context.DeadlineExceeded
		c := connector.NewEventingConnector(publisher, payloads, 0, nil)

		result, err := c.Send(ctx, connector.Request{Event: testEvent(), Endpoint: endpoint, HistoryID: historyID})

		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(result.Status).To(BeEmpty())
	})
})
