package dmarc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8" ?>
<feedback>
  <version>1.0</version>
  <report_metadata>
    <org_name>google.com</org_name>
    <email>noreply-dmarc-support@google.com</email>
    <report_id>8217569251806532337</report_id>
    <date_range>
      <begin>1700000000</begin>
      <end>1700086400</end>
    </date_range>
  </report_metadata>
  <policy_published>
    <domain>example.com</domain>
    <adkim>r</adkim>
    <aspf>s</aspf>
    <p>quarantine</p>
    <sp>reject</sp>
    <pct>100</pct>
  </policy_published>
  <record>
    <row>
      <source_ip>203.0.113.7</source_ip>
      <count>5</count>
      <policy_evaluated>
        <disposition>none</disposition>
        <dkim>pass</dkim>
        <spf>pass</spf>
      </policy_evaluated>
    </row>
    <identifiers>
      <header_from>example.com</header_from>
    </identifiers>
    <auth_results>
      <dkim>
        <domain>example.com</domain>
        <selector>mail</selector>
        <result>pass</result>
      </dkim>
      <spf>
        <domain>example.com</domain>
        <scope>mfrom</scope>
        <result>pass</result>
      </spf>
    </auth_results>
  </record>
</feedback>`

func TestParse(t *testing.T) {
	t.Parallel()

	report, err := Parse([]byte(sampleReport))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if report.ReportMetadata.OrgName != "google.com" {
		t.Errorf("wrong org name: %s", report.ReportMetadata.OrgName)
	}
	if report.PolicyPublished.SPFAlignment != AlignmentStrict {
		t.Errorf("aspf not strict: %s", report.PolicyPublished.SPFAlignment)
	}
	if report.PolicyPublished.DKIMAlignment != AlignmentRelaxed {
		t.Errorf("adkim not relaxed: %s", report.PolicyPublished.DKIMAlignment)
	}
	if len(report.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(report.Records))
	}

	rec := report.Records[0]
	want := Record{
		SourceIP:      "203.0.113.7",
		Count:         5,
		Disposition:   DispositionNone,
		EvaluatedDKIM: ResultPass,
		EvaluatedSPF:  ResultPass,
		HeaderFrom:    "example.com",
		AuthResults: []AuthResult{
			{Mechanism: "dkim", Domain: "example.com", Selector: "mail", Result: "pass"},
			{Mechanism: "spf", Domain: "example.com", Scope: "mfrom", Result: "pass"},
		},
	}
	if diff := cmp.Diff(want, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMissingOptionalFields(t *testing.T) {
	t.Parallel()

	// no report_metadata.email, no policy_published.sp, bare record
	payload := `<feedback>
  <report_metadata>
    <org_name>reporter.example</org_name>
    <report_id>42</report_id>
    <date_range><begin>100</begin><end>200</end></date_range>
  </report_metadata>
  <policy_published>
    <domain>example.com</domain>
    <p>none</p>
  </policy_published>
  <record>
    <row>
      <source_ip>198.51.100.1</source_ip>
    </row>
  </record>
</feedback>`

	report, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("tolerant parse failed: %v", err)
	}
	if report.PolicyPublished.SubdomainPolicy != "" {
		t.Errorf("unexpected sp: %s", report.PolicyPublished.SubdomainPolicy)
	}

	rec := report.Records[0]
	if rec.Count != 1 || !rec.Defaulted.Count {
		t.Errorf("absent count not defaulted to 1: count=%d defaulted=%v", rec.Count, rec.Defaulted.Count)
	}
	if rec.Disposition != DispositionNone || !rec.Defaulted.Disposition {
		t.Errorf("absent disposition not defaulted: %s", rec.Disposition)
	}
	// fail closed
	if rec.EvaluatedDKIM != ResultFail || !rec.Defaulted.DKIM {
		t.Errorf("absent dkim evaluation not failed closed: %s", rec.EvaluatedDKIM)
	}
	if rec.EvaluatedSPF != ResultFail || !rec.Defaulted.SPF {
		t.Errorf("absent spf evaluation not failed closed: %s", rec.EvaluatedSPF)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{"not xml", "this is no xml at all <"},
		{"empty feedback", "<feedback></feedback>"},
		{"inverted date range", `<feedback>
  <report_metadata>
    <org_name>x</org_name>
    <date_range><begin>200</begin><end>100</end></date_range>
  </report_metadata>
</feedback>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected parse error")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParseNegativeCount(t *testing.T) {
	t.Parallel()

	payload := `<feedback>
  <report_metadata><org_name>x</org_name></report_metadata>
  <record><row><source_ip>192.0.2.1</source_ip><count>-3</count></row></record>
</feedback>`
	report, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	rec := report.Records[0]
	if rec.Count != 1 || !rec.Defaulted.Count {
		t.Errorf("negative count not defaulted: count=%d defaulted=%v", rec.Count, rec.Defaulted.Count)
	}
}

func TestParseStripsXSTag(t *testing.T) {
	t.Parallel()

	payload := xsTag + `<feedback>
  <report_metadata><org_name>x</org_name><report_id>1</report_id></report_metadata>
</feedback>`
	if _, err := Parse([]byte(payload)); err != nil {
		t.Fatalf("payload with stray xs tag not parsed: %v", err)
	}
}
