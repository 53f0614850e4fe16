package service

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"impact-gateway/internal/model"
)

// Gather forwards one bodiless request per named route concurrently and
// combines the successful results into a map keyed by name. The first
// failing result, in name order, is returned instead when any upstream
// call does not succeed. Routes without a Path are logged under pr.Path.
func (s *ProxyService) Gather(ctx context.Context, pr *model.ProxyRequest, routes map[string]Route) (model.Result, error) {
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	slices.Sort(names)

	relays := make([]*Relay, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		route := routes[name]
		if route.Path == "" {
			route.Path = pr.Path
		}
		g.Go(func() error {
			sub := &model.ProxyRequest{
				Ctx:    gctx,
				Method: route.upstreamMethod(),
				Path:   pr.Path,
				Params: pr.Params,
				Header: pr.Header,
			}
			relay, err := s.Forward(route, sub)
			if err != nil {
				return fmt.Errorf("section %s: %w", name, err)
			}
			relays[i] = relay
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.Result{}, err
	}

	combined := make(map[string]any, len(names))
	for i, name := range names {
		if !relays[i].Result.OK() {
			return relays[i].Result, nil
		}
		combined[name] = relays[i].Result.Data
	}
	return model.Ok(combined), nil
}
