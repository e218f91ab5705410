package connector_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"notifications.app/engine/internal/connector"
	"notifications.app/engine/internal/model"
)

type namedConnector string

func (n namedConnector) Name() string { return string(n) }

func (n namedConnector) Send(context.Context, connector.Request) (connector.Result, error) {
	return connector.Result{Status: model.StatusSuccess}, nil
}

var _ = Describe("Registry", func() {
	var registry *connector.Registry

	BeforeEach(func() {
		registry = connector.NewRegistry()
		registry.Register(model.EndpointTypeCamel, "", namedConnector("camel"))
		registry.Register(model.EndpointTypeCamel, model.SubTypeSlack, namedConnector("slack"))
	})

	It("prefers the exact subtype", func() {
		c, err := registry.Lookup(model.Endpoint{Type: model.EndpointTypeCamel, SubType: model.SubTypeSlack})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("slack"))
	})

	It("falls back to the connector registered for the type", func() {
		c, err := registry.Lookup(model.Endpoint{Type: model.EndpointTypeCamel, SubType: model.SubTypeTeams})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal("camel"))
	})

	It("reports unknown types", func() {
		_, err := registry.Lookup(model.Endpoint{Type: model.EndpointTypeWebhook})
		Expect(err).To(MatchError(connector.ErrUnknownConnector))
	})
})
