package render_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/model"
	"notifications.app/engine/internal/render"
	"notifications.app/engine/internal/retry"
)

var _ = Describe("Client", func() {
	It("posts the template selector with the event payload", func() {
		var got render.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/internal/templates/render"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			_, _ = w.Write([]byte(`{"subject":"Policy triggered","body":"<p>host-1</p>"}`))
		}))
		defer server.Close()

		event := model.Event{
			OrgID:     "org-1",
			EventType: model.EventType{BundleName: "rhel", ApplicationName: "policies", Name: "policy-triggered"},
			Payload:   json.RawMessage(`{"host":"host-1"}`),
		}
		client := render.NewClient(server.URL, nil, retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, nil)

		out, err := client.Render(context.Background(), render.ForEvent(event, render.ChannelEmail))

		Expect(err).NotTo(HaveOccurred())
		Expect(out.Subject).To(Equal("Policy triggered"))
		Expect(got.BundleName).To(Equal("rhel"))
		Expect(got.EventType).To(Equal("policy-triggered"))
		Expect(got.Channel).To(Equal(render.ChannelEmail))
		Expect(got.Payload).To(MatchJSON(`{"host":"host-1"}`))
	})
})
