// Package rstpmetrics exports spanning tree protocol counters and port
// states to Prometheus. Collector implements rstp.MetricsReporter.
package rstpmetrics
