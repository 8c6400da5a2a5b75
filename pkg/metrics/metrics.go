package metrics

import "github.com/ServiceWeaver/weaver/metrics"

type SequenceLabel struct {
	Sequence string
}

type MutationLabel struct {
	Mutation string
}

type TableLabel struct {
	Table string
}

var (
	// pagination
	PagesFetched = metrics.NewCounterMap[SequenceLabel](
		"sc_pages_fetched",
		"The number of pages fetched per paginated sequence",
	)
	EndOfContent = metrics.NewCounterMap[SequenceLabel](
		"sc_end_of_content",
		"The number of times a paginated sequence reached its last page",
	)
	// optimistic mutations
	Mutations = metrics.NewCounterMap[MutationLabel](
		"sc_mutations",
		"The number of mutations issued against the remote store",
	)
	Rollbacks = metrics.NewCounterMap[MutationLabel](
		"sc_rollbacks",
		"The number of optimistic cache patches reverted after a failed remote write",
	)
	// notifications
	Notifications = metrics.NewCounter(
		"sc_notifications",
		"The number of user-visible notifications raised from errors",
	)
	// realtime
	ChangeEvents = metrics.NewCounterMap[TableLabel](
		"sc_change_events",
		"The number of row change events received",
	)
	ChangeDelayMs = metrics.NewHistogramMap[TableLabel](
		"sc_change_delay_ms",
		"Delay between publishing and receiving a row change in milliseconds",
		metrics.NonNegativeBuckets,
	)
)
