// Package invariant reports programming-invariant violations.
package invariant

import (
	"context"
	"log/slog"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/ftag"
)

// Violation reports err as a broken invariant. With strict set it panics,
// otherwise it logs err at error level and returns.
func Violation(strict bool, logger *slog.Logger, err error, at string, attrs ...any) {
	err = fault.Wrap(err,
		fctx.With(context.Background(), "error_at", at),
		ftag.With(ftag.Internal),
	)

	if strict {
		panic(err)
	}

	logger.Error("invariant violation", append([]any{"error_at", at, "error", err}, attrs...)...)
}
