package recipients_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/recipients"
	"notifications.app/engine/internal/retry"
	"notifications.app/engine/internal/svcauth"
)

var _ = Describe("RBACClient", func() {
	var (
		ctx        context.Context
		server     *httptest.Server
		mux        *http.ServeMux
		client     *recipients.RBACClient
		principals []map[string]any
		policy     retry.Policy
	)

	BeforeEach(func() {
		ctx = context.Background()
		mux = http.NewServeMux()
		server = httptest.NewServer(mux)
		policy = retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

		principals = []map[string]any{
			{"username": "alice", "email": "alice@example.com", "is_active": true, "is_org_admin": true},
			{"username": "bob", "email": "bob@example.com", "is_active": false, "is_org_admin": false},
			{"username": "carol", "email": "carol@example.com", "is_active": true, "is_org_admin": false},
			{"username": "dave", "email": "dave@example.com", "is_active": true, "is_org_admin": false},
		}

		psk := svcauth.PSK{KeyHeader: "x-rh-rbac-psk", ClientIDHeader: "x-rh-rbac-client-id", Key: "secret", ClientID: "notifications"}
		client = recipients.NewRBACClient(server.URL, 2, psk, policy, nil)
	})

	AfterEach(func() {
		server.Close()
	})

	page := func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		end := min(offset+limit, len(principals))
		data := []map[string]any{}
		if offset < len(principals) {
			data = principals[offset:end]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"meta": map[string]any{"count": len(data)}, "data": data})
	}

	It("walks every page and keeps active users", func() {
		var calls atomic.Int32
		mux.HandleFunc("/api/rbac/v1/principals/", func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			calls.Add(1)
			Expect(r.Header.Get("x-rh-rbac-psk")).To(Equal("secret"))
			Expect(r.Header.Get("x-rh-rbac-org-id")).To(Equal("org-1"))
			Expect(r.URL.Query().Get("admin_only")).To(Equal("false"))
			page(w, r)
		})

		users, err := client.Users(ctx, "org-1", false)

		Expect(err).NotTo(HaveOccurred())
		Expect(usernames(users)).To(Equal([]string{"alice", "carol", "dave"}))
		Expect(calls.Load()).To(Equal(int32(3)))
	})

	It("retries a gateway error", func() {
		var calls atomic.Int32
		mux.HandleFunc("/api/rbac/v1/principals/", func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			page(w, r)
		})

		users, err := client.Users(ctx, "org-1", false)

		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(3))
	})

	It("reports the platform default flag of a group", func() {
		groupID := uuid.New()
		mux.HandleFunc("/api/rbac/v1/groups/"+groupID.String()+"/", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"uuid":"` + groupID.String() + `","platform_default":true}`))
		})

		group, err := client.Group(ctx, "org-1", groupID)

		Expect(err).NotTo(HaveOccurred())
		Expect(group.PlatformDefault).To(BeTrue())
	})

	It("maps a missing group to ErrGroupNotFound without retrying", func() {
		var calls atomic.Int32
		mux.HandleFunc("/api/rbac/v1/groups/", func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := client.Group(ctx, "org-1", uuid.New())

		Expect(err).To(MatchError(recipients.ErrGroupNotFound))
		Expect(calls.Load()).To(Equal(int32(1)))
	})

	It("pages through group principals", func() {
		groupID := uuid.New()
		mux.HandleFunc("/api/rbac/v1/groups/"+groupID.String()+"/principals/", page)

		users, err := client.GroupUsers(ctx, "org-1", groupID)

		Expect(err).NotTo(HaveOccurred())
		Expect(users).To(HaveLen(3))
	})
})
