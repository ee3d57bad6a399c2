package domain

import "context"

// CapabilitySuperAdmin marks the highest administrative role, the only class
// of user eligible for assignment SMS notifications.
const CapabilitySuperAdmin = "super_admin"

// DirectoryEntry describes a user known to the role directory. The workflow
// only ever reads these records.
type DirectoryEntry struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	Email            string `json:"email,omitempty"`
	Mobile           string `json:"mobile,omitempty"`
	Role             string `json:"role,omitempty"`
	StripeCustomerID string `json:"-"`
}

// Directory resolves directory entries by user id. A missing user is
// reported as (nil, nil), not as an error.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*DirectoryEntry, error)
}

// HasCapability reports whether the entry holds the named capability.
func HasCapability(entry *DirectoryEntry, capability string) bool {
	if entry == nil {
		return false
	}
	return entry.Role == capability
}
