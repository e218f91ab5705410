package connector_test

import (
	"context"
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/aggregation"
	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/render"
)

var _ = Describe("EmailConnector", func() {
	var (
		ctx           context.Context
		subscriptions *mockSubscriptions
		rows          *memoryAggregationRows
		renderer      *mockRenderer
		mailer        *recordingMailer
		email         *connector.EmailConnector
		endpoint      model.Endpoint
		event         model.Event
	)

	BeforeEach(func() {
		ctx = context.Background()
		subscriptions = &mockSubscriptions{}
		rows = &memoryAggregationRows{}
		renderer = &mockRenderer{}
		mailer = &recordingMailer{}
		email = connector.NewEmailConnector(connector.EmailDeps{
			Subscriptions: subscriptions,
			Aggregations:  aggregation.NewStore(rows, nil),
			Renderer:      renderer,
			Mailer:        mailer,
			MaxRecipients: 2,
		})
		endpoint = model.Endpoint{
			ID:         uuid.New(),
			OrgID:      "org-1",
			Type:       model.EndpointTypeEmailSubscription,
			Enabled:    true,
			Properties: model.EndpointProperties{System: &model.SystemSubscriptionProperties{}},
		}
		event = testEvent()
	})

	Describe("RecipientRequest", func() {
		It("uses opt-out preferences for event types subscribed by default", func() {
			event.EventType.SubscribedByDefault = true
			subscriptions.usersFn = func(model.SubscriptionType, bool) []string { return []string{"mallory"} }

			req, resolve, err := email.RecipientRequest(ctx, event, endpoint)

			Expect(err).NotTo(HaveOccurred())
			Expect(resolve).To(BeTrue())
			Expect(req.Preferences).To(Equal(recipients.Preferences{Mode: recipients.OptOut, Usernames: []string{"mallory"}}))
			Expect(subscriptions.queries).To(Equal([]subscriptionQuery{{subscriptionType: model.SubscriptionInstant, subscribed: false}}))
		})

		It("uses opt-in preferences otherwise", func() {
			subscriptions.usersFn = func(model.SubscriptionType, bool) []string { return []string{"alice"} }

			req, resolve, err := email.RecipientRequest(ctx, event, endpoint)

			Expect(err).NotTo(HaveOccurred())
			Expect(resolve).To(BeTrue())
			Expect(req.Preferences.Mode).To(Equal(recipients.OptIn))
			Expect(req.Settings).To(HaveLen(1))
			Expect(subscriptions.queries[0].subscribed).To(BeTrue())
		})

		It("keeps only settings ignoring preferences when nobody opted in", func() {
			event.Recipients = []model.RecipientSettings{
				model.NewRecipientSettings(false, true, nil, []string{"bob"}),
			}

			req, resolve, err := email.RecipientRequest(ctx, event, endpoint)

			Expect(err).NotTo(HaveOccurred())
			Expect(resolve).To(BeTrue())
			Expect(req.Settings).To(Equal(event.Recipients))
		})

		It("skips resolution when nobody opted in and nothing ignores preferences", func() {
			_, resolve, err := email.RecipientRequest(ctx, event, endpoint)

			Expect(err).NotTo(HaveOccurred())
			Expect(resolve).To(BeFalse())
		})

		It("skips resolution for digest endpoints", func() {
			endpoint.Properties.System.Digest = true

			_, resolve, err := email.RecipientRequest(ctx, event, endpoint)

			Expect(err).NotTo(HaveOccurred())
			Expect(resolve).To(BeFalse())
			Expect(subscriptions.queries).To(BeEmpty())
		})
	})

	Describe("Send", func() {
		It("renders once and mails recipients in batches", func() {
			result, err := email.Send(ctx, connector.Request{Event: event, Endpoint: endpoint, Users: users("alice", "bob", "carol")})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.StatusSuccess))
			Expect(result.Details).To(HaveKeyWithValue("recipients", 3))
			Expect(renderer.requests).To(HaveLen(1))
			Expect(renderer.requests[0].Channel).To(Equal(render.ChannelEmail))
			Expect(mailer.sent).To(HaveLen(2))
			Expect(mailer.sent[0].Bcc).To(Equal([]string{"alice@example.com", "bob@example.com"}))
			Expect(mailer.sent[0].Subject).To(Equal("Subject policy-triggered"))
		})

		It("succeeds without sending when nobody is left", func() {
			result, err := email.Send(ctx, connector.Request{Event: event, Endpoint: endpoint})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Details).To(HaveKeyWithValue("recipients", 0))
			Expect(renderer.requests).To(BeEmpty())
			Expect(mailer.sent).To(BeEmpty())
		})

		It("stores digest events for the daily aggregation", func() {
			endpoint.Properties.System.Digest = true

			result, err := email.Send(ctx, connector.Request{Event: event, Endpoint: endpoint})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Details).To(HaveKeyWithValue("aggregated", true))
			Expect(rows.rows).To(HaveLen(1))
			Expect(rows.rows[0].Key).To(Equal(model.EmailAggregationKey{OrgID: "org-1", BundleName: "rhel", ApplicationName: "policies"}))
			Expect(mailer.sent).To(BeEmpty())
		})

		It("reports a lost aggregation without failing the delivery", func() {
			endpoint.Properties.System.Digest = true
			rows.err = errors.New("db down")

			result, err := email.Send(ctx, connector.Request{Event: event, Endpoint: endpoint})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(model.StatusSuccess))
			Expect(result.Details).To(HaveKeyWithValue("aggregated", false))
			Expect(mailer.sent).To(BeEmpty())
		})

		It("fails when rendering fails", func() {
			renderer.err = errors.New("template missing")

			_, err := email.Send(ctx, connector.Request{Event: event, Endpoint: endpoint, Users: users("alice")})

			Expect(err).To(MatchError(ContainSubstring("template missing")))
			Expect(mailer.sent).To(BeEmpty())
		})
	})
})
