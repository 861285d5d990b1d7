// Package logx provides a small structured logging layer over zerolog.
//
// Components receive a Logger and add fixed fields via With(). The Service
// owns the sinks (console, file) and can be re-applied at runtime; loggers
// created from it pick up the new configuration without being rebuilt.
package logx
