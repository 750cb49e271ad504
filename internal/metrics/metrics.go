// Package metrics defines the Prometheus collectors of the ledger.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ─── Ingestion ──────────────────────────────────────────────────────────────

// ReceiptsProcessed counts admission verdicts by status.
var ReceiptsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitledger",
	Subsystem: "intake",
	Name:      "receipts_processed_total",
	Help:      "Receipts run through admission, by verdict status.",
}, []string{"status"})

// IntakeFilesMoved counts intake files by destination directory.
var IntakeFilesMoved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitledger",
	Subsystem: "intake",
	Name:      "files_moved_total",
	Help:      "Intake files moved after processing, by destination.",
}, []string{"destination"})

// ─── Settlement ─────────────────────────────────────────────────────────────

// SettlementsFinalized counts committed settlements.
var SettlementsFinalized = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "splitledger",
	Subsystem: "settlement",
	Name:      "finalized_total",
	Help:      "Settlements committed.",
})

// FinalizeFailures counts rejected or failed finalize attempts by reason.
var FinalizeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "splitledger",
	Subsystem: "settlement",
	Name:      "finalize_failures_total",
	Help:      "Finalize attempts that did not commit, by reason.",
}, []string{"reason"})

// ─── Ledger state ───────────────────────────────────────────────────────────

// OpenIssues is the number of items needing operator attention at the last aggregation.
var OpenIssues = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "splitledger",
	Subsystem: "ledger",
	Name:      "open_issues",
	Help:      "Unallocated items and unassigned payers found by the last aggregation.",
}, []string{"kind"})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
