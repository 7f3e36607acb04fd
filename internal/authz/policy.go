package authz

import "strings"

// BootstrapPolicy is the environment-driven privilege heuristic. It exists
// so a deployment always has at least one fully privileged identity before
// any role or membership records exist. It is injected explicitly so its
// precedence over the ledger stays visible and overridable in tests.
type BootstrapPolicy struct {
	// AdminEmails is the allow-list of addresses granted the platform
	// admin override.
	AdminEmails []string
	// AutoRegisterDomain grants the default manager role to identities
	// whose email matches this domain. Heuristic path only.
	AutoRegisterDomain string
}

// ParseBootstrapPolicy builds a policy from the raw ADMIN_USERS and
// AUTO_REGISTER_DOMAIN values (comma-separated list, bare domain).
func ParseBootstrapPolicy(adminUsers, autoRegisterDomain string) BootstrapPolicy {
	var emails []string
	for _, e := range strings.Split(adminUsers, ",") {
		e = strings.TrimSpace(strings.ToLower(e))
		if e != "" {
			emails = append(emails, e)
		}
	}
	return BootstrapPolicy{
		AdminEmails:        emails,
		AutoRegisterDomain: strings.TrimSpace(strings.ToLower(autoRegisterDomain)),
	}
}

// IsAdmin reports whether the email is on the allow-list (case-insensitive).
func (p BootstrapPolicy) IsAdmin(email string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return false
	}
	for _, admin := range p.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

// MatchesAutoRegisterDomain reports whether the email's domain matches the
// configured auto-enrollment domain.
func (p BootstrapPolicy) MatchesAutoRegisterDomain(email string) bool {
	if p.AutoRegisterDomain == "" {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	return strings.ToLower(email[at+1:]) == p.AutoRegisterDomain
}
