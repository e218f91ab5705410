package dispatch_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/dispatch"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/recipients"
)

var _ = Describe("Dispatcher", func() {
	var (
		ctx      context.Context
		registry *connector.Registry
		history  *memoryHistory
		resolver *mockResolver
		webhook  *mockConnector
		event    model.Event
	)

	endpointOf := func(t model.EndpointType, subType string) model.Endpoint {
		return model.Endpoint{ID: uuid.New(), OrgID: "org-1", Type: t, SubType: subType, Enabled: true}
	}

	BeforeEach(func() {
		ctx = context.Background()
		registry = connector.NewRegistry()
		history = newMemoryHistory()
		resolver = &mockResolver{resolveFn: func(context.Context, recipients.Request) ([]model.User, error) {
			return []model.User{{Username: "alice"}}, nil
		}}
		webhook = &mockConnector{name: "webhook", sendFn: succeed}
		registry.Register(model.EndpointTypeWebhook, "", webhook)
		event = model.Event{
			ID:        uuid.New(),
			EventType: model.EventType{ID: uuid.New(), BundleName: "rhel", ApplicationName: "policies", Name: "policy-triggered"},
			OrgID:     "org-1",
		}
	})

	It("attempts every endpoint and reports only the failing one", func() {
		a := endpointOf(model.EndpointTypeWebhook, "")
		b := endpointOf(model.EndpointTypeWebhook, "")
		c := endpointOf(model.EndpointTypeWebhook, "")
		webhook.sendFn = func(_ context.Context, req connector.Request) (connector.Result, error) {
			if req.Endpoint.ID == b.ID {
				return connector.Result{Status: model.StatusFailedExternal, Details: map[string]any{"code": 500}}, errors.New("webhook returned status 500")
			}
			return connector.Result{Status: model.StatusSuccess}, nil
		}

		err := dispatch.NewDispatcher(registry, resolver, history, 2, nil).Dispatch(ctx, event, []model.Endpoint{a, b, c})

		var dispatchErr *dispatch.DispatchError
		Expect(errors.As(err, &dispatchErr)).To(BeTrue())
		Expect(dispatchErr.EventID).To(Equal(event.ID))
		Expect(dispatchErr.Failures).To(HaveLen(1))
		Expect(dispatchErr.Failures[0].EndpointID).To(Equal(b.ID))
		Expect(dispatchErr.Failures[0].Status).To(Equal(model.StatusFailedExternal))

		rows := history.byEndpoint()
		Expect(rows).To(HaveLen(3))
		Expect(rows[a.ID].Status).To(Equal(model.StatusSuccess))
		Expect(rows[b.ID].Status).To(Equal(model.StatusFailedExternal))
		Expect(rows[b.ID].Details).To(HaveKeyWithValue("code", 500))
		Expect(rows[b.ID].Details).To(HaveKey("failure"))
		Expect(rows[c.ID].Status).To(Equal(model.StatusSuccess))
		Expect(webhook.calls.Load()).To(Equal(int32(3)))
	})

	It("combines every failing endpoint into one error", func() {
		a := endpointOf(model.EndpointTypeWebhook, "")
		b := endpointOf(model.EndpointTypeWebhook, "")
		c := endpointOf(model.EndpointTypeWebhook, "")
		webhook.sendFn = func(_ context.Context, req connector.Request) (connector.Result, error) {
			switch req.Endpoint.ID {
			case a.ID:
				return connector.Result{Status: model.StatusFailedExternal}, errors.New("webhook returned status 503")
			case c.ID:
				return connector.Result{}, errors.New("secret store unavailable")
			}
			return connector.Result{Status: model.StatusSuccess}, nil
		}

		err := dispatch.NewDispatcher(registry, resolver, history, 3, nil).Dispatch(ctx, event, []model.Endpoint{a, b, c})

		var dispatchErr *dispatch.DispatchError
		Expect(errors.As(err, &dispatchErr)).To(BeTrue())
		failed := make([]uuid.UUID, 0, len(dispatchErr.Failures))
		for _, f := range dispatchErr.Failures {
			failed = append(failed, f.EndpointID)
		}
		Expect(failed).To(ConsistOf(a.ID, c.ID))
		Expect(err.Error()).To(ContainSubstring("2 endpoint(s) failed"))
		Expect(err.Error()).To(ContainSubstring(a.ID.String()))
		Expect(err.Error()).To(ContainSubstring(c.ID.String()))
		Expect(err.Error()).NotTo(ContainSubstring(b.ID.String()))
		Expect(err).To(MatchError(ContainSubstring("secret store unavailable")))

		rows := history.byEndpoint()
		Expect(rows[a.ID].Status).To(Equal(model.StatusFailedExternal))
		Expect(rows[b.ID].Status).To(Equal(model.StatusSuccess))
		Expect(rows[c.ID].Status).To(Equal(model.StatusFailedInternal))
	})

	It("contains a panicking connector to its own endpoint", func() {
		broken := endpointOf(model.EndpointTypeWebhook, "")
		healthy := endpointOf(model.EndpointTypeWebhook, "")
		webhook.sendFn = func(_ context.Context, req connector.Request) (connector.Result, error) {
			if req.Endpoint.ID == broken.ID {
				var details map[string]any
				details["code"] = 500
			}
			return connector.Result{Status: model.StatusSuccess}, nil
		}

		var err error
		Expect(func() {
			err = dispatch.NewDispatcher(registry, resolver, history, 2, nil).Dispatch(ctx, event, []model.Endpoint{broken, healthy})
		}).NotTo(Panic())

		var dispatchErr *dispatch.DispatchError
		Expect(errors.As(err, &dispatchErr)).To(BeTrue())
		Expect(dispatchErr.Failures).To(HaveLen(1))
		Expect(dispatchErr.Failures[0].EndpointID).To(Equal(broken.ID))
		Expect(dispatchErr.Failures[0].Status).To(Equal(model.StatusFailedInternal))
		Expect(err).To(MatchError(ContainSubstring("connector panic")))

		rows := history.byEndpoint()
		Expect(rows[broken.ID].Status).To(Equal(model.StatusFailedInternal))
		Expect(rows[broken.ID].Details).To(HaveKey("failure"))
		Expect(rows[healthy.ID].Status).To(Equal(model.StatusSuccess))
	})

	It("skips disabled endpoints without writing history", func() {
		disabled := endpointOf(model.EndpointTypeWebhook, "")
		disabled.Enabled = false

		err := dispatch.NewDispatcher(registry, resolver, history, 2, nil).Dispatch(ctx, event, []model.Endpoint{disabled})

		Expect(err).NotTo(HaveOccurred())
		Expect(webhook.calls.Load()).To(BeZero())
		Expect(history.rows).To(BeEmpty())
	})

	It("records an unknown connector as an internal failure", func() {
		unknown := endpointOf(model.EndpointTypePagerDuty, "")

		err := dispatch.NewDispatcher(registry, resolver, history, 2, nil).Dispatch(ctx, event, []model.Endpoint{unknown})

		Expect(err).To(MatchError(connector.ErrUnknownConnector))
		Expect(history.byEndpoint()[unknown.ID].Status).To(Equal(model.StatusFailedInternal))
	})

	It("records an error without status as an internal failure", func() {
		webhook.sendFn = func(context.Context, connector.Request) (connector.Result, error) {
			return connector.Result{}, errors.New("secret store unavailable")
		}
		e := endpointOf(model.EndpointTypeWebhook, "")

		err := dispatch.NewDispatcher(registry, resolver, history, 1, nil).Dispatch(ctx, event, []model.Endpoint{e})

		Expect(err).To(MatchError(ContainSubstring("secret store unavailable")))
		row := history.byEndpoint()[e.ID]
		Expect(row.Status).To(Equal(model.StatusFailedInternal))
		Expect(row.Details).To(HaveKeyWithValue("failure", "secret store unavailable"))
	})

	It("resolves recipients before sending through a recipient connector", func() {
		var got []model.User
		email := &mockRecipientConnector{
			mockConnector: mockConnector{name: "email", sendFn: func(_ context.Context, req connector.Request) (connector.Result, error) {
				got = req.Users
				return connector.Result{Status: model.StatusSuccess}, nil
			}},
			requestFn: func(_ context.Context, ev model.Event, _ model.Endpoint) (recipients.Request, bool, error) {
				return recipients.Request{OrgID: ev.OrgID}, true, nil
			},
		}
		registry.Register(model.EndpointTypeEmailSubscription, "", email)

		err := dispatch.NewDispatcher(registry, resolver, history, 1, nil).Dispatch(ctx, event, []model.Endpoint{endpointOf(model.EndpointTypeEmailSubscription, "")})

		Expect(err).NotTo(HaveOccurred())
		Expect(resolver.calls.Load()).To(Equal(int32(1)))
		Expect(got).To(Equal([]model.User{{Username: "alice"}}))
	})

	It("fails the endpoint when recipient resolution fails", func() {
		resolver.resolveFn = func(context.Context, recipients.Request) ([]model.User, error) {
			return nil, errors.New("rbac down")
		}
		email := &mockRecipientConnector{
			mockConnector: mockConnector{name: "email", sendFn: succeed},
			requestFn: func(context.Context, model.Event, model.Endpoint) (recipients.Request, bool, error) {
				return recipients.Request{}, true, nil
			},
		}
		registry.Register(model.EndpointTypeEmailSubscription, "", email)
		e := endpointOf(model.EndpointTypeEmailSubscription, "")

		err := dispatch.NewDispatcher(registry, resolver, history, 1, nil).Dispatch(ctx, event, []model.Endpoint{e})

		Expect(err).To(HaveOccurred())
		Expect(email.calls.Load()).To(BeZero())
		Expect(history.byEndpoint()[e.ID].Status).To(Equal(model.StatusFailedInternal))
	})

	It("keeps asynchronous deliveries pending", func() {
		camel := &mockConnector{name: "eventing", sendFn: func(_ context.Context, req connector.Request) (connector.Result, error) {
			Expect(req.HistoryID).NotTo(Equal(uuid.Nil))
			return connector.Result{Status: model.StatusProcessing}, nil
		}}
		registry.Register(model.EndpointTypeCamel, "", camel)
		e := endpointOf(model.EndpointTypeCamel, model.SubTypeSlack)

		err := dispatch.NewDispatcher(registry, resolver, history, 1, nil).Dispatch(ctx, event, []model.Endpoint{e})

		Expect(err).NotTo(HaveOccurred())
		Expect(history.byEndpoint()[e.ID].Status).To(Equal(model.StatusProcessing))
	})

	It("never runs more endpoints at once than it has workers", func() {
		var running, peak atomic.Int32
		webhook.sendFn = func(context.Context, connector.Request) (connector.Result, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return connector.Result{Status: model.StatusSuccess}, nil
		}
		endpoints := make([]model.Endpoint, 8)
		for i := range endpoints {
			endpoints[i] = endpointOf(model.EndpointTypeWebhook, "")
		}

		err := dispatch.NewDispatcher(registry, resolver, history, 3, nil).Dispatch(ctx, event, endpoints)

		Expect(err).NotTo(HaveOccurred())
		Expect(peak.Load()).To(BeNumerically("<=", 3))
		Expect(history.rows).To(HaveLen(8))
	})
})
