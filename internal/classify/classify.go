package classify

// Decision is the classification verdict for one email. Reason names the
// rule that matched so the decision stays auditable.
type Decision struct {
	IsReport bool
	Reason   string
}

type rule struct {
	name  string
	match func(Signals) bool
}

// rules are evaluated in order, first match wins. A weighted score would be
// harder to audit and to test rule by rule.
var rules = []rule{
	{
		name: "subject pattern",
		match: func(s Signals) bool {
			return s.SubjectHasReportPattern
		},
	},
	{
		name: "attachment + body evidence",
		match: func(s Signals) bool {
			return s.HasReportAttachment && (s.BodyHasFeedbackXML || s.BodyHasReportPattern)
		},
	},
	{
		name: "feedback xml body",
		match: func(s Signals) bool {
			return s.BodyHasFeedbackXML
		},
	},
}

// Classify combines the signals into a report / not-a-report decision. It
// always yields a decision, no rule match means not a report.
func Classify(s Signals) Decision {
	for _, r := range rules {
		if r.match(s) {
			return Decision{IsReport: true, Reason: r.name}
		}
	}
	return Decision{IsReport: false, Reason: "no rule matched"}
}
