package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/object"
	"github.com/ryanbastic/go-geodrop/internal/placement"
	"github.com/ryanbastic/go-geodrop/internal/proximity"
	"github.com/ryanbastic/go-geodrop/internal/zone"
)

type GetObjectInput struct {
	ID    string `path:"id" doc:"Object ID" format:"uuid"`
	Actor string `query:"actor" doc:"Viewing actor" required:"true" minLength:"1"`
}

type GetObjectOutput struct {
	Body *object.WorldObject
}

type ActorAtQuery struct {
	Actor string `path:"actor" doc:"Viewing actor"`
	Lat   string `query:"lat" doc:"Latitude; defaults to the last known position"`
	Lng   string `query:"lng" doc:"Longitude; defaults to the last known position"`
}

type NearbyResponse struct {
	Position  geo.Coordinate       `json:"position" doc:"Position the query was answered for"`
	Sightings []proximity.Sighting `json:"sightings" doc:"Objects within the discovery radius, nearest first"`
}

type NearbyOutput struct {
	Body NearbyResponse
}

type NearestResponse struct {
	Position geo.Coordinate      `json:"position"`
	Found    bool                `json:"found"`
	Sighting *proximity.Sighting `json:"sighting,omitempty"`
}

type NearestOutput struct {
	Body NearestResponse
}

type HeldInput struct {
	Actor string `path:"actor" doc:"Holding actor"`
}

type HeldResponse struct {
	Items    []*object.WorldObject `json:"items"`
	Held     int                   `json:"held"`
	Capacity int                   `json:"capacity"`
}

type HeldOutput struct {
	Body HeldResponse
}

type PreviewThrowInput struct {
	Lat        string  `query:"lat" doc:"Origin latitude" required:"true"`
	Lng        string  `query:"lng" doc:"Origin longitude" required:"true"`
	BearingDeg float64 `query:"bearing_deg" doc:"Compass bearing in degrees"`
	DistanceKm float64 `query:"distance_km" doc:"Explicit distance in km, ignored when tier is set"`
	Tier       string  `query:"tier" doc:"Range tier name"`
	Power      float64 `query:"power" doc:"Throw power within the tier" minimum:"0" maximum:"1"`
}

type PreviewThrowOutput struct {
	Body placement.Plan
}

type ZoneView struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Reason  string           `json:"reason,omitempty"`
	Bounds  *zone.Bounds     `json:"bounds,omitempty"`
	Polygon []geo.Coordinate `json:"polygon,omitempty"`
	Anchor  geo.Coordinate   `json:"anchor"`
}

type ListZonesOutput struct {
	Body []ZoneView
}

func registerQueryRoutes(api huma.API, h *WorldHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-object",
		Method:      http.MethodGet,
		Path:        "/v1/objects/{id}",
		Summary:     "Get an object visible to the actor",
		Tags:        []string{"world"},
	}, h.GetObject)

	huma.Register(api, huma.Operation{
		OperationID: "nearby",
		Method:      http.MethodGet,
		Path:        "/v1/actors/{actor}/nearby",
		Summary:     "List discoverable objects around the actor",
		Tags:        []string{"world"},
	}, h.Nearby)

	huma.Register(api, huma.Operation{
		OperationID: "nearest",
		Method:      http.MethodGet,
		Path:        "/v1/actors/{actor}/nearest",
		Summary:     "Direction hint to the closest dropped object",
		Tags:        []string{"world"},
	}, h.Nearest)

	huma.Register(api, huma.Operation{
		OperationID: "held",
		Method:      http.MethodGet,
		Path:        "/v1/actors/{actor}/held",
		Summary:     "List items the actor holds",
		Tags:        []string{"items"},
	}, h.Held)

	huma.Register(api, huma.Operation{
		OperationID: "preview-throw",
		Method:      http.MethodGet,
		Path:        "/v1/throws/preview",
		Summary:     "Compute a landing without placing anything",
		Tags:        []string{"world"},
	}, h.PreviewThrow)

	huma.Register(api, huma.Operation{
		OperationID: "list-zones",
		Method:      http.MethodGet,
		Path:        "/v1/zones",
		Summary:     "List restricted zones",
		Tags:        []string{"world"},
	}, h.ListZones)
}

func (h *WorldHandler) GetObject(ctx context.Context, input *GetObjectInput) (*GetObjectOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	o, err := h.mgr.GetVisible(ctx, input.Actor, id)
	if err != nil {
		return nil, toHTTPError(h.logger, "get-object", err)
	}
	return &GetObjectOutput{Body: o}, nil
}

func (h *WorldHandler) Nearby(ctx context.Context, input *ActorAtQuery) (*NearbyOutput, error) {
	at, err := h.locateQuery(ctx, input.Actor, input.Lat, input.Lng)
	if err != nil {
		return nil, err
	}
	sightings, err := h.mgr.Nearby(ctx, input.Actor, at)
	if err != nil {
		return nil, toHTTPError(h.logger, "nearby", err)
	}
	return &NearbyOutput{Body: NearbyResponse{Position: at, Sightings: sightings}}, nil
}

func (h *WorldHandler) Nearest(ctx context.Context, input *ActorAtQuery) (*NearestOutput, error) {
	at, err := h.locateQuery(ctx, input.Actor, input.Lat, input.Lng)
	if err != nil {
		return nil, err
	}
	hit, ok, err := h.mgr.Nearest(ctx, input.Actor, at)
	if err != nil {
		return nil, toHTTPError(h.logger, "nearest", err)
	}
	resp := NearestResponse{Position: at, Found: ok}
	if ok {
		s := proximity.Sight(hit, h.mgr.Radii())
		resp.Sighting = &s
	}
	return &NearestOutput{Body: resp}, nil
}

func (h *WorldHandler) Held(ctx context.Context, input *HeldInput) (*HeldOutput, error) {
	items, err := h.mgr.Held(ctx, input.Actor)
	if err != nil {
		return nil, toHTTPError(h.logger, "held", err)
	}
	if items == nil {
		items = []*object.WorldObject{}
	}
	return &HeldOutput{Body: HeldResponse{Items: items, Held: len(items), Capacity: h.mgr.Capacity()}}, nil
}

func (h *WorldHandler) PreviewThrow(ctx context.Context, input *PreviewThrowInput) (*PreviewThrowOutput, error) {
	origin, err := parseCoordinate(input.Lat, input.Lng)
	if err != nil {
		return nil, err
	}
	req := ThrowRequest{BearingDeg: input.BearingDeg, Tier: input.Tier, Power: input.Power}
	if input.Tier == "" {
		req.DistanceKm = &input.DistanceKm
	}
	t, err := h.throw(req)
	if err != nil {
		return nil, err
	}
	plan, err := h.mgr.Planner().PlanThrow(origin, t.BearingDeg, t.DistanceKm)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &PreviewThrowOutput{Body: plan}, nil
}

func (h *WorldHandler) ListZones(ctx context.Context, _ *struct{}) (*ListZonesOutput, error) {
	zones := h.mgr.Planner().Policy().Zones()
	out := make([]ZoneView, 0, len(zones))
	for _, z := range zones {
		out = append(out, ZoneView{
			ID:      z.ID,
			Name:    z.Name,
			Reason:  z.Reason,
			Bounds:  z.Bounds,
			Polygon: z.Polygon,
			Anchor:  z.Anchor,
		})
	}
	return &ListZonesOutput{Body: out}, nil
}
