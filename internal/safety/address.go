package safety

import (
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
)

// NormalizeAddress extracts the bare address from a header value such as
// `"Bank" <Alerts+promo@Bank.com>` and returns it case-folded with any
// "+suffix" sub-address removed: "alerts@bank.com".
func NormalizeAddress(raw string) (string, bool) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", false
	}
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	} else if i := strings.LastIndex(addr, "<"); i >= 0 {
		addr = strings.TrimSuffix(addr[i+1:], ">")
	}

	addr = cases.Fold().String(strings.TrimSpace(addr))
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", false
	}

	local, domain := addr[:at], strings.TrimSuffix(addr[at+1:], ".")
	if plus := strings.Index(local, "+"); plus > 0 {
		local = local[:plus]
	}
	return local + "@" + domain, true
}

// DomainOf returns the domain part of a normalized address
func DomainOf(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return addr[at+1:]
	}
	return ""
}

// LocalPartOf returns the local part of a normalized address
func LocalPartOf(addr string) string {
	if at := strings.LastIndex(addr, "@"); at >= 0 {
		return addr[:at]
	}
	return addr
}

func normalizeDomain(d string) string {
	d = cases.Fold().String(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "*.")
	d = strings.TrimPrefix(d, "@")
	return strings.TrimSuffix(d, ".")
}

// AddressSet matches senders against explicit addresses and domains.
// A domain entry also covers its subdomains.
type AddressSet struct {
	addresses map[string]struct{}
	domains   []string
}

// NewAddressSet normalizes addresses and domains into a set. Entries that
// are not valid addresses are ignored.
func NewAddressSet(addresses, domains []string) AddressSet {
	s := AddressSet{addresses: make(map[string]struct{}, len(addresses))}
	for _, a := range addresses {
		if n, ok := NormalizeAddress(a); ok {
			s.addresses[n] = struct{}{}
		}
	}
	for _, d := range domains {
		if n := normalizeDomain(d); n != "" {
			s.domains = append(s.domains, n)
		}
	}
	return s
}

// Empty reports whether the set has no entries
func (s AddressSet) Empty() bool {
	return len(s.addresses) == 0 && len(s.domains) == 0
}

// Match reports whether the normalized address is covered by the set and
// which kind of entry matched ("sender" or "domain")
func (s AddressSet) Match(addr string) (bool, string) {
	if _, ok := s.addresses[addr]; ok {
		return true, "sender"
	}
	domain := DomainOf(addr)
	if domain == "" {
		return false, ""
	}
	for _, d := range s.domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true, "domain"
		}
	}
	return false, ""
}
