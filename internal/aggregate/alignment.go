package aggregate

import (
	"strings"

	"github.com/dmarcwatch/dmarcwatch/internal/dmarc"

	"golang.org/x/net/publicsuffix"
)

// aligned reports whether authDomain aligns with the message's visible
// From domain under the given mode. Strict requires exact equality,
// relaxed matches on the organizational domain (eTLD+1), mirroring RFC
// 7489 identifier alignment.
func aligned(authDomain, headerFrom string, mode dmarc.Alignment) bool {
	authDomain = strings.ToLower(strings.TrimSuffix(authDomain, "."))
	headerFrom = strings.ToLower(strings.TrimSuffix(headerFrom, "."))
	if authDomain == "" || headerFrom == "" {
		return false
	}

	if mode == dmarc.AlignmentStrict {
		return authDomain == headerFrom
	}

	return organizationalDomain(authDomain) == organizationalDomain(headerFrom)
}

func organizationalDomain(domain string) string {
	org, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		// a bare TLD or unlisted suffix, fall back to the name itself
		return domain
	}
	return org
}

// dmarcPass evaluates the record the way a receiver does: SPF or DKIM must
// pass AND the passing domain must align with the From domain.
func dmarcPass(rec dmarc.Record, policy dmarc.PolicyPublished) bool {
	headerFrom := rec.HeaderFrom
	if headerFrom == "" {
		headerFrom = policy.Domain
	}

	for _, ar := range rec.AuthResults {
		if !strings.EqualFold(ar.Result, string(dmarc.ResultPass)) {
			continue
		}
		switch ar.Mechanism {
		case "spf":
			if aligned(ar.Domain, headerFrom, policy.SPFAlignment) {
				return true
			}
		case "dkim":
			if aligned(ar.Domain, headerFrom, policy.DKIMAlignment) {
				return true
			}
		}
	}

	// without raw auth results fall back to the receiver's own evaluated
	// verdicts, which are aligned by definition
	if len(rec.AuthResults) == 0 {
		return rec.EvaluatedSPF == dmarc.ResultPass || rec.EvaluatedDKIM == dmarc.ResultPass
	}

	return false
}
