// Package utils provides shared low-level helpers used throughout the
// engine internals: currently a simple elapsed-time [Timer] for measuring
// iteration and scheduling latency.
package utils
