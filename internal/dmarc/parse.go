package dmarc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// some reporters emit invalid XML by adding an unclosed xs tag
const xsTag = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="http://dmarc.org/dmarc-xml/0.1">`

// ParseError marks a payload that could not be turned into a Report.
// Callers skip the file and keep processing the batch.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse turns one decompressed report payload into a Report. Parsing is
// tolerant: any single missing optional field gets its documented default
// and a Defaulted marker. Only a payload that is not well-formed XML, is
// missing both report_metadata and every record, or carries an inverted
// date range fails.
func Parse(payload []byte) (*Report, error) {
	payload = bytes.ReplaceAll(payload, []byte(xsTag), []byte(""))

	var doc feedbackXML
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, &ParseError{Reason: "not well-formed xml", Err: err}
	}

	if !doc.hasMetadata() && len(doc.Records) == 0 {
		return nil, &ParseError{Reason: "missing report_metadata and records"}
	}

	meta := ReportMetadata{
		OrgName:          doc.ReportMetadata.OrgName,
		Email:            doc.ReportMetadata.Email,
		ExtraContactInfo: doc.ReportMetadata.ExtraContactInfo,
		ReportID:         doc.ReportMetadata.ReportID,
		DateRangeBegin:   doc.ReportMetadata.DateRange.Begin,
		DateRangeEnd:     doc.ReportMetadata.DateRange.End,
		Errors:           doc.ReportMetadata.Error,
	}
	if meta.DateRangeBegin > meta.DateRangeEnd {
		return nil, &ParseError{Reason: fmt.Sprintf("date range begin %d after end %d", meta.DateRangeBegin, meta.DateRangeEnd)}
	}

	report := &Report{
		Version:         doc.Version,
		ReportMetadata:  meta,
		PolicyPublished: parsePolicy(doc),
		Records:         make([]Record, 0, len(doc.Records)),
	}

	for _, rec := range doc.Records {
		report.Records = append(report.Records, parseRecord(rec))
	}

	return report, nil
}

func parsePolicy(doc feedbackXML) PolicyPublished {
	p := PolicyPublished{
		Domain:          doc.PolicyPublished.Domain,
		DKIMAlignment:   parseAlignment(doc.PolicyPublished.Adkim),
		SPFAlignment:    parseAlignment(doc.PolicyPublished.Aspf),
		Policy:          doc.PolicyPublished.P,
		SubdomainPolicy: doc.PolicyPublished.Sp,
		Percentage:      100,
	}
	if p.Policy == "" {
		p.Policy = "none"
	}
	if pct, err := strconv.Atoi(doc.PolicyPublished.Pct); err == nil {
		p.Percentage = pct
	}
	return p
}

func parseAlignment(s string) Alignment {
	if s == string(AlignmentStrict) {
		return AlignmentStrict
	}
	// relaxed is the DMARC default
	return AlignmentRelaxed
}

func parseRecord(rec recordXML) Record {
	r := Record{
		SourceIP:     rec.Row.SourceIP,
		Count:        1,
		EnvelopeTo:   rec.Identifiers.EnvelopeTo,
		HeaderFrom:   rec.Identifiers.HeaderFrom,
		EnvelopeFrom: rec.Identifiers.EnvelopeFrom,
	}

	if rec.Row.Count != nil && *rec.Row.Count >= 0 {
		r.Count = *rec.Row.Count
	} else {
		r.Defaulted.Count = true
	}

	r.Disposition = parseDisposition(rec.Row.PolicyEvaluated.Disposition, &r.Defaulted.Disposition)
	r.EvaluatedDKIM = parseResult(rec.Row.PolicyEvaluated.Dkim, &r.Defaulted.DKIM)
	r.EvaluatedSPF = parseResult(rec.Row.PolicyEvaluated.Spf, &r.Defaulted.SPF)

	for _, reason := range rec.Row.PolicyEvaluated.Reason {
		r.OverrideReasons = append(r.OverrideReasons, OverrideReason{
			Type:    reason.Type,
			Comment: reason.Comment,
		})
	}

	for _, dkim := range rec.AuthResults.Dkim {
		r.AuthResults = append(r.AuthResults, AuthResult{
			Mechanism: "dkim",
			Domain:    dkim.Domain,
			Selector:  dkim.Selector,
			Result:    dkim.Result,
		})
	}
	for _, spf := range rec.AuthResults.Spf {
		r.AuthResults = append(r.AuthResults, AuthResult{
			Mechanism: "spf",
			Domain:    spf.Domain,
			Scope:     spf.Scope,
			Result:    spf.Result,
		})
	}

	return r
}

func parseDisposition(s string, defaulted *bool) Disposition {
	switch Disposition(s) {
	case DispositionNone, DispositionQuarantine, DispositionReject:
		return Disposition(s)
	}
	*defaulted = true
	return DispositionNone
}

// parseResult fails closed: an absent or unrecognized evaluation is never
// counted as a pass.
func parseResult(s string, defaulted *bool) Result {
	switch Result(s) {
	case ResultPass, ResultFail:
		return Result(s)
	}
	*defaulted = true
	return ResultFail
}
