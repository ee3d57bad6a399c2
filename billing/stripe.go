package billing

import (
	"context"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Gateway is the slice of the payment provider the portal flow needs:
// provisioning a customer record and opening a hosted billing portal
// session for it.
type Gateway interface {
	CreateCustomer(ctx context.Context, email, name, userID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	api *client.API
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway creates a gateway authenticated with the operator's
// secret key.
func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

// CreateCustomer provisions a customer record carrying the portal user's
// identity in its metadata. It returns the new customer id.
func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata("user_id", userID)

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

// CreatePortalSession opens a hosted billing portal session scoped to the
// customer and returns its URL.
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}
	sess, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
