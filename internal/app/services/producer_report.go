package services

import (
	"context"
	"fmt"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/report"
)

// ReportSummary is the outcome of a report pass.
type ReportSummary struct {
	PassSummary
	Document *report.Document
	Output   *report.Result
}

// Report classifies like Scan but only writes the findings. It queues nothing and sends no warnings.
func (p *Producers) Report(ctx context.Context) (*ReportSummary, error) {
	defer observePass("report", time.Now())
	sum := &ReportSummary{PassSummary: PassSummary{RunID: newRunID()}}
	log := p.Log.Sub("Report").Sub(sum.RunID)

	idx, err := p.loadIndex(ctx)
	if err != nil {
		return sum, p.abort(ctx, "report", err)
	}
	groups, err := p.sortedGroups(ctx)
	if err != nil {
		return sum, p.abort(ctx, "report", err)
	}

	doc := report.NewDocument(sum.RunID, p.now())
	for _, g := range groups {
		sum.Groups++
		for _, part := range g.Participants {
			if part.Phone == "" || p.isSelf(part.Phone) || part.IsAdmin {
				continue
			}
			sum.Participants++
			chatPhone := phone.Digits(part.Phone)
			for _, d := range p.Rules.Evaluate(g.Name, idx.Lookup(chatPhone)) {
				doc.Add(chatPhone, d.Reason, g.Name)
			}
		}
	}
	sum.Document = doc

	if p.Reports == nil {
		return sum, fmt.Errorf("report writer not configured")
	}
	out, err := p.Reports.Write(ctx, doc)
	if err != nil {
		return sum, fmt.Errorf("write report: %w", err)
	}
	sum.Output = out
	log.Infof("report written to %s (%d phones flagged across %d groups)", out.YAMLPath, len(doc.Phones), sum.Groups)
	return sum, nil
}
