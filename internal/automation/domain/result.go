package domain

import (
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	trackingdomain "github.com/smallbiznis/noty/internal/tracking/domain"
)

// Counters are the fields shared by every run record.
type Counters struct {
	ClientsProcessed  int
	PaymentsProcessed int
	MessagesSent      int
	MessagesFailed    int
}

// Result is the outcome of one automation. Each automation returns its own
// variant and maps it to the common counters.
type Result interface {
	Counters() Counters
	// ItemErrors lists the per-item failures that did not abort the run.
	ItemErrors() []string
	isResult()
}

type SyncResult struct {
	Sync      billingdomain.SyncSummary     `json:"sync"`
	Reconcile billingdomain.ReconcileResult `json:"reconcile"`
}

type WarningResult struct {
	Sweep notificationdomain.SweepResult `json:"sweep"`
}

type OverdueResult struct {
	Reconcile billingdomain.ReconcileResult  `json:"reconcile"`
	Sweep     notificationdomain.SweepResult `json:"sweep"`
}

type BlockResult struct {
	Sweep trackingdomain.SweepResult `json:"sweep"`
}

func (SyncResult) isResult()    {}
func (WarningResult) isResult() {}
func (OverdueResult) isResult() {}
func (BlockResult) isResult()   {}

func (r SyncResult) Counters() Counters {
	return Counters{
		ClientsProcessed:  r.Sync.ClientsUpserted,
		PaymentsProcessed: r.Sync.PaymentsUpserted + int(r.Reconcile.Processed),
	}
}

func (r SyncResult) ItemErrors() []string {
	return concat(r.Sync.Errors, r.Reconcile.Errors)
}

func (r WarningResult) Counters() Counters {
	return Counters{
		PaymentsProcessed: r.Sweep.Candidates,
		MessagesSent:      r.Sweep.Sent,
		MessagesFailed:    r.Sweep.Failed,
	}
}

func (r WarningResult) ItemErrors() []string { return r.Sweep.Errors }

func (r OverdueResult) Counters() Counters {
	return Counters{
		PaymentsProcessed: r.Sweep.Candidates + int(r.Reconcile.Processed),
		MessagesSent:      r.Sweep.Sent,
		MessagesFailed:    r.Sweep.Failed,
	}
}

func (r OverdueResult) ItemErrors() []string {
	return concat(r.Reconcile.Errors, r.Sweep.Errors)
}

func (r BlockResult) Counters() Counters {
	return Counters{
		ClientsProcessed: r.Sweep.ClientsEvaluated + r.Sweep.Failed,
		MessagesSent:     r.Sweep.Warned,
	}
}

func (r BlockResult) ItemErrors() []string { return r.Sweep.Errors }

func concat(lists ...[]string) []string {
	var out []string
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}
