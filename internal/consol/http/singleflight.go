package http

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-budget/internal/consol"
)

var reportBuildGroup singleflight.Group

// singleflightBuild collapses concurrent builds of the same key. The caller
// stops waiting when ctx ends; the shared build keeps running for the others.
func singleflightBuild(ctx context.Context, key string, fn func(context.Context) (consol.Report, error)) (consol.Report, error, bool) {
	resultChan := reportBuildGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return consol.Report{}, ctx.Err(), false
	case res := <-resultChan:
		if res.Err != nil {
			return consol.Report{}, res.Err, res.Shared
		}
		report, _ := res.Val.(consol.Report)
		return report, nil, res.Shared
	}
}
