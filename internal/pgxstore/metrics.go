package store

const (
	// MetricDatabase is the metric key used when logging the duration of a query.
	MetricDatabase = "db"
	// MetricDatabaseRetries is the metric key used when logging a serialization retry.
	MetricDatabaseRetries = "dbr"
)
