package notify

import (
	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
)

// Recipient is one party of the notification fan-out
type Recipient string

const (
	// RecipientAdmin is the admin committee ticket queue
	RecipientAdmin    Recipient = "ac"
	RecipientExchange Recipient = "ix"
	RecipientNetwork  Recipient = "net"
)

// Everyone is the full fan-out
var Everyone = []Recipient{RecipientAdmin, RecipientExchange, RecipientNetwork}

// rolePriority is the order network contacts are tried in
var rolePriority = []peering.ContactRole{
	peering.RolePolicy,
	peering.RoleTechnical,
	peering.RoleNOC,
	peering.RoleMaintenance,
}

// NetworkContacts returns the emails of the highest priority role that has any
func NetworkContacts(n *peering.Network) []string {
	if n == nil {
		return nil
	}
	for _, role := range rolePriority {
		var emails []string
		for _, c := range n.Contacts {
			if c.Role == role && c.Email != "" {
				emails = appendUnique(emails, c.Email)
			}
		}
		if len(emails) > 0 {
			return emails
		}
	}
	return nil
}

// ExchangeContacts returns the technical and policy emails of an exchange
func ExchangeContacts(ix *peering.Exchange) []string {
	if ix == nil {
		return nil
	}
	var emails []string
	for _, e := range []string{ix.TechEmail, ix.PolicyEmail} {
		if e != "" {
			emails = appendUnique(emails, e)
		}
	}
	return emails
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}
