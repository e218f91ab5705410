package connector_test

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/recipients"
)

var _ = Describe("DrawerConnector", func() {
	var (
		ctx           context.Context
		subscriptions *mockSubscriptions
		entries       *memoryDrawer
		renderer      *mockRenderer
		publisher     *recordingPublisher
		deps          connector.DrawerDeps
		endpoint      model.Endpoint
	)

	BeforeEach(func() {
		ctx = context.Background()
		subscriptions = &mockSubscriptions{usersFn: func(model.SubscriptionType, bool) []string { return []string{"mallory"} }}
		entries = &memoryDrawer{}
		renderer = &mockRenderer{}
		publisher = &recordingPublisher{}
		deps = connector.DrawerDeps{
			Enabled:       true,
			Subscriptions: subscriptions,
			Entries:       entries,
			Renderer:      renderer,
			Publisher:     publisher,
		}
		endpoint = model.Endpoint{
			ID:         uuid.New(),
			OrgID:      "org-1",
			Type:       model.EndpointTypeDrawer,
			Enabled:    true,
			Properties: model.EndpointProperties{System: &model.SystemSubscriptionProperties{}},
		}
	})

	It("resolves with drawer opt-outs", func() {
		req, resolve, err := connector.NewDrawerConnector(deps).RecipientRequest(ctx, testEvent(), endpoint)

		Expect(err).NotTo(HaveOccurred())
		Expect(resolve).To(BeTrue())
		Expect(req.Preferences).To(Equal(recipients.Preferences{Mode: recipients.OptOut, Usernames: []string{"mallory"}}))
		Expect(subscriptions.queries).To(Equal([]subscriptionQuery{{subscriptionType: model.SubscriptionDrawer, subscribed: false}}))
	})

	It("stores one entry per user and publishes a notice", func() {
		event := testEvent()
		historyID := uuid.New()

		result, err := connector.NewDrawerConnector(deps).Send(ctx, connector.Request{
			Event: event, Endpoint: endpoint, HistoryID: historyID, Users: users("alice", "bob"),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusSuccess))
		Expect(entries.entries).To(HaveLen(2))
		Expect(entries.entries[event.ID.String()+"/alice"].Rendered).To(Equal("<p>drawer</p>"))
		Expect(publisher.messages).To(HaveLen(1))
		Expect(publisher.messages[0].ID).To(Equal(historyID.String()))

		var notice connector.DrawerNotice
		Expect(json.Unmarshal(publisher.messages[0].Body, &notice)).To(Succeed())
		Expect(notice.Usernames).To(Equal([]string{"alice", "bob"}))
	})

	It("does not store an entry twice for a redelivered event", func() {
		c := connector.NewDrawerConnector(deps)
		req := connector.Request{Event: testEvent(), Endpoint: endpoint, HistoryID: uuid.New(), Users: users("alice")}

		_, err := c.Send(ctx, req)
		Expect(err).NotTo(HaveOccurred())
		result, err := c.Send(ctx, req)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Details).To(HaveKeyWithValue("recipients", 0))
		Expect(entries.entries).To(HaveLen(1))
		Expect(publisher.messages).To(HaveLen(1))
	})

	It("does nothing when the drawer is switched off", func() {
		deps.Enabled = false
		c := connector.NewDrawerConnector(deps)

		_, resolve, err := c.RecipientRequest(ctx, testEvent(), endpoint)
		Expect(err).NotTo(HaveOccurred())
		Expect(resolve).To(BeFalse())

		result, err := c.Send(ctx, connector.Request{Event: testEvent(), Endpoint: endpoint, Users: users("alice")})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Details).To(HaveKeyWithValue("drawer_enabled", false))
		Expect(entries.entries).To(BeEmpty())
	})
})
