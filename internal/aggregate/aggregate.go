// Package aggregate folds parsed DMARC reports into pass/fail and
// disposition statistics, overall and per domain. Aggregation is a pure
// fold over immutable reports: every run recomputes from the full set so
// the summary always matches what is on storage.
package aggregate

import (
	"sort"

	"github.com/dmarcwatch/dmarcwatch/internal/dmarc"
)

// Totals is one set of weighted pass/fail counters. All counters are
// weighted by the record's message count, not by record count.
type Totals struct {
	Records      int                       `json:"records"`
	Messages     int                       `json:"messages"`
	SPFPass      int                       `json:"spf_pass"`
	SPFFail      int                       `json:"spf_fail"`
	DKIMPass     int                       `json:"dkim_pass"`
	DKIMFail     int                       `json:"dkim_fail"`
	DMARCPass    int                       `json:"dmarc_pass"`
	DMARCFail    int                       `json:"dmarc_fail"`
	Dispositions map[dmarc.Disposition]int `json:"dispositions"`
}

func newTotals() Totals {
	return Totals{Dispositions: make(map[dmarc.Disposition]int)}
}

func (t *Totals) add(rec dmarc.Record, policy dmarc.PolicyPublished) {
	count := rec.Count
	t.Records++
	t.Messages += count

	if rec.EvaluatedSPF == dmarc.ResultPass {
		t.SPFPass += count
	} else {
		t.SPFFail += count
	}
	if rec.EvaluatedDKIM == dmarc.ResultPass {
		t.DKIMPass += count
	} else {
		t.DKIMFail += count
	}
	if dmarcPass(rec, policy) {
		t.DMARCPass += count
	} else {
		t.DMARCFail += count
	}
	t.Dispositions[rec.Disposition] += count
}

func (t *Totals) merge(other Totals) {
	t.Records += other.Records
	t.Messages += other.Messages
	t.SPFPass += other.SPFPass
	t.SPFFail += other.SPFFail
	t.DKIMPass += other.DKIMPass
	t.DKIMFail += other.DKIMFail
	t.DMARCPass += other.DMARCPass
	t.DMARCFail += other.DMARCFail
	for d, c := range other.Dispositions {
		t.Dispositions[d] += c
	}
}

// Stats is the aggregation result: overall totals plus a per-domain and a
// per-source-IP breakdown.
type Stats struct {
	Reports int               `json:"reports"`
	Overall Totals            `json:"overall"`
	Domains map[string]Totals `json:"domains"`
	Sources map[string]int    `json:"sources"`
}

// SourceCount is one source IP with its message volume.
type SourceCount struct {
	IP       string `json:"ip"`
	Messages int    `json:"messages"`
}

// Aggregate folds the reports into a Stats. The fold is deterministic and
// order independent, every counter is a commutative sum.
func Aggregate(reports []*dmarc.Report) Stats {
	stats := Stats{
		Overall: newTotals(),
		Domains: make(map[string]Totals),
		Sources: make(map[string]int),
	}

	for _, report := range reports {
		stats.Reports++
		for _, rec := range report.Records {
			stats.Overall.add(rec, report.PolicyPublished)

			domain := rec.HeaderFrom
			if domain == "" {
				domain = report.PolicyPublished.Domain
			}
			domainTotals, ok := stats.Domains[domain]
			if !ok {
				domainTotals = newTotals()
			}
			domainTotals.add(rec, report.PolicyPublished)
			stats.Domains[domain] = domainTotals

			if rec.SourceIP != "" {
				stats.Sources[rec.SourceIP] += rec.Count
			}
		}
	}

	return stats
}

// Merge combines two partial aggregations, used when reports are folded in
// parallel.
func Merge(a, b Stats) Stats {
	merged := Stats{
		Reports: a.Reports + b.Reports,
		Overall: newTotals(),
		Domains: make(map[string]Totals),
		Sources: make(map[string]int),
	}
	merged.Overall.merge(a.Overall)
	merged.Overall.merge(b.Overall)
	for _, part := range []Stats{a, b} {
		for domain, totals := range part.Domains {
			domainTotals, ok := merged.Domains[domain]
			if !ok {
				domainTotals = newTotals()
			}
			domainTotals.merge(totals)
			merged.Domains[domain] = domainTotals
		}
		for ip, count := range part.Sources {
			merged.Sources[ip] += count
		}
	}
	return merged
}

// TopSources returns the n highest-volume source IPs, ordered by message
// count, ties broken by IP for stable output.
func (s Stats) TopSources(n int) []SourceCount {
	sources := make([]SourceCount, 0, len(s.Sources))
	for ip, count := range s.Sources {
		sources = append(sources, SourceCount{IP: ip, Messages: count})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Messages != sources[j].Messages {
			return sources[i].Messages > sources[j].Messages
		}
		return sources[i].IP < sources[j].IP
	})
	if n < len(sources) {
		sources = sources[:n]
	}
	return sources
}
