// Package identity resolves who is calling. Token verification happens
// upstream; the gateway forwards the verified identity as headers.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

// Gateway headers
const (
	HeaderActorID     = "X-Actor-ID"
	HeaderBusinessID  = "X-Business-ID"
	HeaderRole        = "X-Role"
	HeaderPermissions = "X-Permissions"
)

// Resolver turns an inbound request into an Actor
type Resolver interface {
	Resolve(r *http.Request) (models.Actor, error)
}

// HeaderResolver trusts the identity headers set by the API gateway
type HeaderResolver struct{}

func NewHeaderResolver() *HeaderResolver {
	return &HeaderResolver{}
}

func (HeaderResolver) Resolve(r *http.Request) (models.Actor, error) {
	actorID := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if actorID == "" {
		return models.Actor{}, errs.New(errs.ErrUnauthorized, errs.CodeUnauthorized, "missing caller identity")
	}

	role := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole)))
	switch role {
	case models.RoleOwner, models.RoleManager, models.RoleStaff, models.RoleRider, models.RoleCustomer, models.RoleAdmin:
	case "":
		role = models.RoleCustomer
	default:
		// system is reserved for in-process callers
		return models.Actor{}, errs.New(errs.ErrUnauthorized, errs.CodeUnauthorized, "unknown role "+role)
	}

	actor := models.Actor{
		ActorID:    actorID,
		BusinessID: strings.TrimSpace(r.Header.Get(HeaderBusinessID)),
		Role:       role,
	}
	for _, p := range strings.Split(r.Header.Get(HeaderPermissions), ",") {
		if p = strings.TrimSpace(p); p != "" {
			actor.Permissions = append(actor.Permissions, p)
		}
	}
	return actor, nil
}

// CustomerRef is what the caller tells us about the ordering customer
type CustomerRef struct {
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Customer is the resolved ordering party. Exactly one of the IDs is set.
type Customer struct {
	CustomerID string
	GuestID    string
}

// ID returns whichever identifier is set
func (c Customer) ID() string {
	if c.CustomerID != "" {
		return c.CustomerID
	}
	return c.GuestID
}

// CustomerResolver maps the caller and its customer details to a Customer
type CustomerResolver interface {
	ResolveCustomer(ctx context.Context, businessID string, actor models.Actor, ref CustomerRef) (Customer, error)
}

// ActorCustomerResolver uses the actor for signed-in customers and derives a
// stable guest id from the phone number for everyone else
type ActorCustomerResolver struct{}

func NewActorCustomerResolver() *ActorCustomerResolver {
	return &ActorCustomerResolver{}
}

func (ActorCustomerResolver) ResolveCustomer(_ context.Context, businessID string, actor models.Actor, ref CustomerRef) (Customer, error) {
	if actor.Role == models.RoleCustomer && actor.ActorID != "" {
		return Customer{CustomerID: actor.ActorID}, nil
	}

	phone := normalizePhone(ref.Phone)
	if phone == "" {
		return Customer{GuestID: "g_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]}, nil
	}
	sum := sha256.Sum256([]byte(businessID + "|" + phone))
	return Customer{GuestID: "g_" + hex.EncodeToString(sum[:8])}, nil
}

func normalizePhone(p string) string {
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
