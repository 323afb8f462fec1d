package dmarc

// wire structure of a DMARC aggregate report
// https://tools.ietf.org/html/rfc7489#appendix-C
type feedbackXML struct {
	Version        string `xml:"version"`
	ReportMetadata struct {
		OrgName          string `xml:"org_name"`
		Email            string `xml:"email"`
		ExtraContactInfo string `xml:"extra_contact_info"`
		ReportID         string `xml:"report_id"`
		DateRange        struct {
			Begin int64 `xml:"begin"`
			End   int64 `xml:"end"`
		} `xml:"date_range"`
		Error []string `xml:"error"`
	} `xml:"report_metadata"`
	PolicyPublished struct {
		Domain string `xml:"domain"`
		Adkim  string `xml:"adkim"`
		Aspf   string `xml:"aspf"`
		P      string `xml:"p"`
		Sp     string `xml:"sp"`
		Pct    string `xml:"pct"`
		Fo     string `xml:"fo"`
	} `xml:"policy_published"`
	Records []recordXML `xml:"record"`
}

type recordXML struct {
	Row struct {
		SourceIP string `xml:"source_ip"`
		// pointer so an absent count can be told apart from zero
		Count           *int `xml:"count"`
		PolicyEvaluated struct {
			Disposition string              `xml:"disposition"`
			Dkim        string              `xml:"dkim"`
			Spf         string              `xml:"spf"`
			Reason      []overrideReasonXML `xml:"reason"`
		} `xml:"policy_evaluated"`
	} `xml:"row"`
	Identifiers struct {
		EnvelopeTo   string `xml:"envelope_to"`
		HeaderFrom   string `xml:"header_from"`
		EnvelopeFrom string `xml:"envelope_from"`
	} `xml:"identifiers"`
	AuthResults struct {
		Spf []struct {
			Domain string `xml:"domain"`
			Scope  string `xml:"scope"`
			Result string `xml:"result"`
		} `xml:"spf"`
		Dkim []struct {
			Domain      string `xml:"domain"`
			Selector    string `xml:"selector"`
			Result      string `xml:"result"`
			HumanResult string `xml:"human_result"`
		} `xml:"dkim"`
	} `xml:"auth_results"`
}

type overrideReasonXML struct {
	Type    string `xml:"type"`
	Comment string `xml:"comment"`
}

func (f *feedbackXML) hasMetadata() bool {
	m := f.ReportMetadata
	return m.OrgName != "" || m.Email != "" || m.ReportID != "" ||
		m.DateRange.Begin != 0 || m.DateRange.End != 0
}
