// Package alerts evaluates threshold rules against confidence results and
// delivers webhook notifications when rules fire or resolve.
package alerts
