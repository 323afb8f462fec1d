package dmarc

import (
	"time"
)

// Disposition is the policy action the receiver applied to a message.
type Disposition string

const (
	DispositionNone       Disposition = "none"
	DispositionQuarantine Disposition = "quarantine"
	DispositionReject     Disposition = "reject"
)

// Result is an evaluated pass/fail verdict.
type Result string

const (
	ResultPass Result = "pass"
	ResultFail Result = "fail"
)

// Alignment is the identifier alignment mode from the published policy.
type Alignment string

const (
	AlignmentRelaxed Alignment = "r"
	AlignmentStrict  Alignment = "s"
)

// Report is one parsed aggregate report. Immutable after parsing.
type Report struct {
	Version         string
	ReportMetadata  ReportMetadata
	PolicyPublished PolicyPublished
	Records         []Record
}

type ReportMetadata struct {
	OrgName          string
	Email            string
	ExtraContactInfo string
	ReportID         string
	DateRangeBegin   int64
	DateRangeEnd     int64
	Errors           []string
}

// Interval returns the covered time span as a half-open [begin, end)
// interval.
func (m ReportMetadata) Interval() (time.Time, time.Time) {
	return time.Unix(m.DateRangeBegin, 0), time.Unix(m.DateRangeEnd, 0)
}

type PolicyPublished struct {
	Domain          string
	DKIMAlignment   Alignment
	SPFAlignment    Alignment
	Policy          string
	SubdomainPolicy string
	Percentage      int
}

// Record is one source/count row of a report.
type Record struct {
	SourceIP        string
	Count           int
	Disposition     Disposition
	EvaluatedDKIM   Result
	EvaluatedSPF    Result
	OverrideReasons []OverrideReason
	EnvelopeTo      string
	HeaderFrom      string
	EnvelopeFrom    string
	AuthResults     []AuthResult
	// Defaulted marks fields that were absent in the input and filled
	// with their documented default, so downstream consumers can tell a
	// reported value from a substituted one.
	Defaulted Defaulted
}

// AuthResult is a single per-mechanism authentication result.
type AuthResult struct {
	Mechanism string // "dkim" or "spf"
	Domain    string
	Selector  string // dkim only
	Scope     string // spf only
	Result    string
}

type OverrideReason struct {
	Type    string
	Comment string
}

// Defaulted records which per-record fields were defaulted during parsing:
// count to 1, disposition to none and evaluated results to fail. An absent
// evaluation is never counted as a pass.
type Defaulted struct {
	Count       bool
	Disposition bool
	DKIM        bool
	SPF         bool
}
