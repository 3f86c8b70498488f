package models

// Roles
const (
	RoleOwner    = "owner"
	RoleManager  = "manager"
	RoleStaff    = "staff"
	RoleRider    = "rider"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// Capabilities
const (
	PermUpdateStatus = "order:update_status"
	PermAssignRider  = "order:assign_rider"
	PermViewOrders   = "order:view"
)

// Actor is the resolved identity of a caller together with its capabilities
type Actor struct {
	ActorID     string   `json:"actor_id"`
	BusinessID  string   `json:"business_id,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

// Can reports whether the actor holds the capability
func (a Actor) Can(perm string) bool {
	if a.Role == RoleAdmin {
		return true
	}
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// IsStaff reports whether the actor acts on behalf of a business
func (a Actor) IsStaff() bool {
	switch a.Role {
	case RoleOwner, RoleManager, RoleStaff:
		return true
	}
	return false
}
