package service_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/service"
	"notifications.app/engine/internal/store"
)

var _ = Describe("DeliveryStatusService", func() {
	var (
		ctx        context.Context
		history    *mockHistory
		endpoints  *mockEndpoints
		svc        service.DeliveryStatusService
		endpointID uuid.UUID
		recorded   model.NotificationStatus
	)

	BeforeEach(func() {
		ctx = context.Background()
		endpointID = uuid.New()
		history = &mockHistory{completeFn: func(_ context.Context, id uuid.UUID, status model.NotificationStatus, details map[string]any) (*model.NotificationHistory, error) {
			recorded = status
			return &model.NotificationHistory{ID: id, EndpointID: &endpointID, Status: status, Details: details}, nil
		}}
		endpoints = &mockEndpoints{}
		tx := &mockTxRunner{provider: &mockStoreProvider{history: history, endpoints: endpoints}}
		svc = service.NewDeliveryStatusService(tx, 10, nil)
	})

	It("records success and resets the endpoint's failure counter", func() {
		h, err := svc.Complete(ctx, service.StatusUpdate{HistoryID: uuid.New(), Successful: true})

		Expect(err).NotTo(HaveOccurred())
		Expect(h.Status).To(Equal(model.StatusSuccess))
		Expect(endpoints.resets).To(Equal([]uuid.UUID{endpointID}))
	})

	It("records SENT when the destination only accepted the message", func() {
		_, err := svc.Complete(ctx, service.StatusUpdate{HistoryID: uuid.New(), Successful: true, Sent: true})

		Expect(err).NotTo(HaveOccurred())
		Expect(recorded).To(Equal(model.StatusSent))
	})

	It("records an external failure and counts it against the endpoint", func() {
		h, err := svc.Complete(ctx, service.StatusUpdate{
			HistoryID: uuid.New(),
			Details:   map[string]any{"outcome": "HTTP 503"},
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(h.Status).To(Equal(model.StatusFailedExternal))
		Expect(h.Details).To(HaveKeyWithValue("outcome", "HTTP 503"))
		Expect(endpoints.increments).To(Equal([]uuid.UUID{endpointID}))
	})

	It("passes through rows that are already final", func() {
		history.completeFn = func(context.Context, uuid.UUID, model.NotificationStatus, map[string]any) (*model.NotificationHistory, error) {
			return nil, store.ErrAlreadyFinal
		}

		_, err := svc.Complete(ctx, service.StatusUpdate{HistoryID: uuid.New(), Successful: true})

		Expect(err).To(MatchError(store.ErrAlreadyFinal))
		Expect(endpoints.resets).To(BeEmpty())
	})
})
