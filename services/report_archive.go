package services

import (
	"context"
	"fmt"
)

// ReportArchiver persists sweep reports for audit.
type ReportArchiver interface {
	ArchiveSweepReport(ctx context.Context, report *SweepReport) error
}

// JSONPutter is satisfied by utils.R2Store.
type JSONPutter interface {
	PutJSON(ctx context.Context, key string, v interface{}) error
}

// BucketArchiver writes each report to sweeps/<yyyy>/<mm>/<dd>/<timestamp>.json.
type BucketArchiver struct {
	Store  JSONPutter
	Prefix string
}

func NewBucketArchiver(store JSONPutter) *BucketArchiver {
	return &BucketArchiver{Store: store, Prefix: "sweeps"}
}

func (a *BucketArchiver) ArchiveSweepReport(ctx context.Context, report *SweepReport) error {
	return a.Store.PutJSON(ctx, a.key(report), report)
}

func (a *BucketArchiver) key(report *SweepReport) string {
	ts := report.Timestamp.UTC()
	return fmt.Sprintf("%s/%s/%s.json", a.Prefix, ts.Format("2006/01/02"), ts.Format("20060102T150405.000Z"))
}
