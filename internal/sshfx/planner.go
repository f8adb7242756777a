package sshfx

import (
	"context"

	"github.com/yurykabanov/transferd/pkg/planner"
	"github.com/yurykabanov/transferd/pkg/sshpool"
)

func PlannerLister(pool *sshpool.Pool) *planner.ShellLister {
	return planner.NewShellLister(func(ctx context.Context, hostId, cmd string) (string, error) {
		result, err := pool.Exec(ctx, hostId, cmd)
		if err != nil {
			return "", err
		}
		return result.Stdout, nil
	})
}

func Planner(lister *planner.ShellLister) *planner.Planner {
	return planner.New(lister)
}
