// Package testutil provides common constants, builders and fakes for tests
package testutil

const (
	// TestRecordCount is a common number of seeded records
	TestRecordCount = 10

	// TestWorkerCount is the number of goroutines in concurrency tests
	TestWorkerCount = 8
)

// Common test names
const (
	// TestTable is a default table name
	TestTable = "posts"

	// TestOtherTable is a second table name
	TestOtherTable = "comments"

	// TestColumn is a default column name
	TestColumn = "title"

	// TestLastPulledAt is a typical server timestamp in milliseconds
	TestLastPulledAt int64 = 1_700_000_000_000
)
