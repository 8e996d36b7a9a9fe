package placement

import (
	"context"
	"sync"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/naming"
)

// Phase is a step of the placement state machine.
type Phase string

const (
	PhasePlanning      Phase = "PLANNING"
	PhaseRedirectCheck Phase = "REDIRECT_CHECK"
	PhaseNameResolving Phase = "NAME_RESOLVING"
	PhaseCommitted     Phase = "COMMITTED"
)

// Placement is a planned throw together with its fixed place names.
type Placement struct {
	Phase          Phase  `json:"phase"`
	Plan           Plan   `json:"plan"`
	OriginName     string `json:"origin_name"`
	ArrivalName    string `json:"arrival_name"`
	NamingDegraded bool   `json:"naming_degraded"`
}

// Observer is told about every phase transition. Presentation concerns
// (animations, delays) hook in here; Place waits for it to return.
type Observer func(Phase, Placement)

// Place runs PLANNING -> REDIRECT_CHECK -> NAME_RESOLVING -> COMMITTED.
// Naming failures, timeouts and cancellation never fail the placement: the
// affected name becomes naming.UnknownLocation. The arrival name is always
// resolved for the final, post-redirect coordinate.
func (p *Planner) Place(ctx context.Context, origin geo.Coordinate, t Throw, observe Observer) (Placement, error) {
	if observe == nil {
		observe = func(Phase, Placement) {}
	}

	pl := Placement{Phase: PhasePlanning}
	observe(pl.Phase, pl)

	plan, err := p.PlanThrow(origin, t.BearingDeg, t.DistanceKm)
	if err != nil {
		return Placement{}, err
	}
	pl.Plan = plan
	pl.Phase = PhaseRedirectCheck
	observe(pl.Phase, pl)

	pl.Phase = PhaseNameResolving
	observe(pl.Phase, pl)

	var (
		wg               sync.WaitGroup
		originOK, destOK bool
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		pl.OriginName, originOK = naming.ResolveOrFallback(ctx, p.resolver, plan.Origin, p.namingTimeout)
	}()
	go func() {
		defer wg.Done()
		pl.ArrivalName, destOK = naming.ResolveOrFallback(ctx, p.resolver, plan.Final, p.namingTimeout)
	}()
	wg.Wait()
	pl.NamingDegraded = !originOK || !destOK

	pl.Phase = PhaseCommitted
	observe(pl.Phase, pl)
	return pl, nil
}
