package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
)

type CreateItemInput struct {
	Body struct {
		Actor string              `json:"actor" doc:"Owner of the new item" minLength:"1" maxLength:"128"`
		Item  lifecycle.ItemDraft `json:"item"`
	}
}

type PickResultOutput struct {
	Body lifecycle.PickResult
}

type DropItemInput struct {
	ID   string `path:"id" doc:"Item ID" format:"uuid"`
	Body struct {
		Actor    string          `json:"actor" doc:"Current holder" minLength:"1" maxLength:"128"`
		Position *geo.Coordinate `json:"position,omitempty" doc:"Current position; defaults to the last known one"`
		Throw    ThrowRequest    `json:"throw"`
	}
}

type ItemActionInput struct {
	ID   string `path:"id" doc:"Item ID" format:"uuid"`
	Body ActorAtBody
}

func registerItemRoutes(api huma.API, h *WorldHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/v1/items",
		Summary:       "Create an item in the actor's hold",
		Tags:          []string{"items"},
		DefaultStatus: http.StatusCreated,
	}, h.CreateItem)

	huma.Register(api, huma.Operation{
		OperationID: "drop-item",
		Method:      http.MethodPost,
		Path:        "/v1/items/{id}/drop",
		Summary:     "Throw a held item",
		Tags:        []string{"items"},
	}, h.DropItem)

	huma.Register(api, huma.Operation{
		OperationID: "release-item",
		Method:      http.MethodPost,
		Path:        "/v1/items/{id}/release",
		Summary:     "Put a held item down at the actor's position",
		Tags:        []string{"items"},
	}, h.ReleaseItem)

	huma.Register(api, huma.Operation{
		OperationID: "pick-item",
		Method:      http.MethodPost,
		Path:        "/v1/items/{id}/pick",
		Summary:     "Pick up a dropped item",
		Tags:        []string{"items"},
	}, h.PickItem)
}

func (h *WorldHandler) CreateItem(ctx context.Context, input *CreateItemInput) (*PickResultOutput, error) {
	res, err := h.mgr.CreateItem(ctx, input.Body.Actor, input.Body.Item)
	if err != nil {
		return nil, toHTTPError(h.logger, "create-item", err)
	}
	return &PickResultOutput{Body: res}, nil
}

func (h *WorldHandler) DropItem(ctx context.Context, input *DropItemInput) (*DropOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	b := input.Body
	if _, err := h.locate(ctx, b.Actor, b.Position); err != nil {
		return nil, err
	}
	t, err := h.throw(b.Throw)
	if err != nil {
		return nil, err
	}

	var log phaseLog
	o, err := h.sessions.For(b.Actor).Drop(ctx, id, t, log.observe)
	if err != nil {
		return nil, toHTTPError(h.logger, "drop-item", err)
	}
	return log.output(o), nil
}

func (h *WorldHandler) ReleaseItem(ctx context.Context, input *ItemActionInput) (*DropOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if _, err := h.locate(ctx, input.Body.Actor, input.Body.Position); err != nil {
		return nil, err
	}

	var log phaseLog
	o, err := h.sessions.For(input.Body.Actor).Release(ctx, id, log.observe)
	if err != nil {
		return nil, toHTTPError(h.logger, "release-item", err)
	}
	return log.output(o), nil
}

func (h *WorldHandler) PickItem(ctx context.Context, input *ItemActionInput) (*PickResultOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if _, err := h.locate(ctx, input.Body.Actor, input.Body.Position); err != nil {
		return nil, err
	}

	res, err := h.sessions.For(input.Body.Actor).Pick(ctx, id)
	if err != nil {
		return nil, toHTTPError(h.logger, "pick-item", err)
	}
	return &PickResultOutput{Body: res}, nil
}
