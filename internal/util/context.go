// Package util provides context, naming and struct helpers used throughout fesdql.
package util

import "context"

// IsCanceled checks if the context has been canceled.
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
