// Package collector buffers test execution records and hands full batches to
// an upload sink. Record() never blocks on the network: full batches are
// flushed on a bounded set of background goroutines, and when the buffer hits
// its overflow limit the oldest records are evicted to make room.
package collector
