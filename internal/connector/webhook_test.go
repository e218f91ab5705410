package connector_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/core/config"
	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/retry"
	"notifications.app/engine/internal/secrets"
)

var _ = Describe("WebhookConnector", func() {
	var (
		ctx       context.Context
		server    *httptest.Server
		status    int
		leading   []int
		calls     int
		received  *http.Request
		body      []byte
		endpoints *mockEndpoints
		secretsFn *mockSecrets
		webhook   *connector.WebhookConnector
		endpoint  model.Endpoint
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = http.StatusOK
		leading = nil
		calls = 0
		received = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			calls++
			received = r.Clone(context.Background())
			var err error
			body, err = io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			if len(leading) > 0 {
				w.WriteHeader(leading[0])
				leading = leading[1:]
				return
			}
			w.WriteHeader(status)
		}))

		endpoints = &mockEndpoints{}
		secretsFn = &mockSecrets{getFn: func(_ context.Context, orgID string, id int64) (secrets.Secret, error) {
			Expect(orgID).To(Equal("org-1"))
			Expect(id).To(Equal(int64(42)))
			return secrets.Secret{Password: "tok"}, nil
		}}
		webhook = connector.NewWebhookConnector(config.WebhookConfig{
			Timeout:         time.Second,
			MaxServerErrors: 2,
			Retry:           config.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		}, secretsFn, endpoints, nil)

		endpoint = model.Endpoint{
			ID:      uuid.New(),
			OrgID:   "org-1",
			Type:    model.EndpointTypeWebhook,
			Enabled: true,
			Properties: model.EndpointProperties{Webhook: &model.WebhookProperties{
				URL:            server.URL + "/hook",
				Method:         http.MethodPost,
				Authentication: &model.Authentication{Type: model.AuthenticationSecretToken, SecretID: 42},
			}},
		}
	})

	AfterEach(func() {
		server.Close()
	})

	send := func() (connector.Result, error) {
		return webhook.Send(ctx, connector.Request{Event: testEvent(), Endpoint: endpoint, HistoryID: uuid.New()})
	}

	It("posts the payload with the secret token header", func() {
		result, err := send()

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusSuccess))
		Expect(result.Details).To(HaveKeyWithValue("code", http.StatusOK))
		Expect(received.URL.Path).To(Equal("/hook"))
		Expect(received.Header.Get("X-Insight-Token")).To(Equal("tok"))
		Expect(received.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(body).To(MatchJSON(`{"host":"web-1","severity":"high"}`))
	})

	It("resets the failure counter after a success", func() {
		endpoint.ServerErrors = 3

		_, err := send()

		Expect(err).NotTo(HaveOccurred())
		Expect(endpoints.calls.resets).To(Equal(1))
	})

	It("retries a transient failure and succeeds without counting it", func() {
		leading = []int{http.StatusServiceUnavailable}

		result, err := send()

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusSuccess))
		Expect(result.Details).To(HaveKeyWithValue("code", http.StatusOK))
		Expect(calls).To(Equal(2))
		Expect(endpoints.calls.increments).To(BeZero())
	})

	It("counts one server error once retries are exhausted", func() {
		status = http.StatusBadGateway

		result, err := send()

		Expect(err).To(MatchError(retry.ErrRetriesExhausted))
		Expect(result.Status).To(Equal(model.StatusFailedExternal))
		Expect(result.Details).To(HaveKeyWithValue("code", http.StatusBadGateway))
		Expect(calls).To(Equal(3))
		Expect(endpoints.calls.increments).To(Equal(1))
		Expect(endpoints.disableAfter).To(Equal(2))
		Expect(endpoints.calls.disables).To(BeZero())
	})

	It("does not retry a non-transient server error", func() {
		status = http.StatusInternalServerError

		result, err := send()

		Expect(err).To(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusFailedExternal))
		Expect(calls).To(Equal(1))
		Expect(endpoints.calls.increments).To(Equal(1))
	})

	It("disables the endpoint on a client error", func() {
		status = http.StatusGone

		result, err := send()

		Expect(err).To(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusFailedExternal))
		Expect(calls).To(Equal(1))
		Expect(endpoints.calls.disables).To(Equal(1))
		Expect(endpoints.calls.increments).To(BeZero())
	})

	It("keeps the endpoint enabled on a redirect", func() {
		status = http.StatusNotModified

		result, err := send()

		Expect(err).To(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusFailedExternal))
		Expect(result.Details).To(HaveKeyWithValue("code", http.StatusNotModified))
		Expect(endpoints.calls.disables).To(BeZero())
		Expect(endpoints.calls.increments).To(BeZero())
	})

	It("treats an unreachable destination as a server error", func() {
		server.Close()

		result, err := send()

		Expect(err).To(HaveOccurred())
		Expect(result.Status).To(Equal(model.StatusFailedExternal))
		Expect(result.Details).To(HaveKeyWithValue("error_type", "connection"))
		Expect(endpoints.calls.increments).To(Equal(1))
	})

	It("fails before calling out when the secret cannot be read", func() {
		endpoint.Properties.Webhook.Authentication.Type = "OAUTH"

		result, err := send()

		Expect(err).To(MatchError(secrets.ErrUnsupportedAuthType))
		Expect(result.Status).To(BeEmpty())
		Expect(received).To(BeNil())
	})
})
