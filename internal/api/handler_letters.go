package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ryanbastic/go-geodrop/internal/geo"
	"github.com/ryanbastic/go-geodrop/internal/lifecycle"
)

type SendLetterBody struct {
	Actor    string                `json:"actor" doc:"Sending actor" minLength:"1" maxLength:"128"`
	Position *geo.Coordinate       `json:"position,omitempty" doc:"Current position; defaults to the last known one"`
	Throw    ThrowRequest          `json:"throw"`
	Letter   lifecycle.LetterDraft `json:"letter"`
}

type SendLetterInput struct {
	Body SendLetterBody
}

type ActorAtBody struct {
	Actor    string          `json:"actor" doc:"Acting actor" minLength:"1" maxLength:"128"`
	Position *geo.Coordinate `json:"position,omitempty" doc:"Current position; defaults to the last known one"`
}

type CollectLetterInput struct {
	ID   string `path:"id" doc:"Letter ID" format:"uuid"`
	Body ActorAtBody
}

type CollectLetterOutput struct {
	Body lifecycle.CollectResult
}

type AnnotateLetterInput struct {
	ID   string `path:"id" doc:"Letter ID" format:"uuid"`
	Body struct {
		Actor string `json:"actor" doc:"Finder of the letter" minLength:"1" maxLength:"128"`
		Note  string `json:"note" doc:"Reply note" minLength:"1" maxLength:"280"`
	}
}

type AnnotateLetterOutput struct {
	Body lifecycle.AnnotateResult
}

func registerLetterRoutes(api huma.API, h *WorldHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "send-letter",
		Method:        http.MethodPost,
		Path:          "/v1/letters",
		Summary:       "Throw a new letter",
		Tags:          []string{"letters"},
		DefaultStatus: http.StatusCreated,
	}, h.SendLetter)

	huma.Register(api, huma.Operation{
		OperationID: "collect-letter",
		Method:      http.MethodPost,
		Path:        "/v1/letters/{id}/collect",
		Summary:     "Collect a dropped letter",
		Tags:        []string{"letters"},
	}, h.CollectLetter)

	huma.Register(api, huma.Operation{
		OperationID: "annotate-letter",
		Method:      http.MethodPost,
		Path:        "/v1/letters/{id}/annotate",
		Summary:     "Attach the finder's note to a collected letter",
		Tags:        []string{"letters"},
	}, h.AnnotateLetter)
}

func (h *WorldHandler) SendLetter(ctx context.Context, input *SendLetterInput) (*DropOutput, error) {
	b := input.Body
	if _, err := h.locate(ctx, b.Actor, b.Position); err != nil {
		return nil, err
	}
	t, err := h.throw(b.Throw)
	if err != nil {
		return nil, err
	}

	var log phaseLog
	o, err := h.sessions.For(b.Actor).Send(ctx, t, b.Letter, log.observe)
	if err != nil {
		return nil, toHTTPError(h.logger, "send-letter", err)
	}
	return log.output(o), nil
}

func (h *WorldHandler) CollectLetter(ctx context.Context, input *CollectLetterInput) (*CollectLetterOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	if _, err := h.locate(ctx, input.Body.Actor, input.Body.Position); err != nil {
		return nil, err
	}

	res, err := h.sessions.For(input.Body.Actor).Collect(ctx, id)
	if err != nil {
		return nil, toHTTPError(h.logger, "collect-letter", err)
	}
	return &CollectLetterOutput{Body: res}, nil
}

func (h *WorldHandler) AnnotateLetter(ctx context.Context, input *AnnotateLetterInput) (*AnnotateLetterOutput, error) {
	id, err := parseID(input.ID)
	if err != nil {
		return nil, err
	}
	res, err := h.mgr.Annotate(ctx, input.Body.Actor, id, input.Body.Note)
	if err != nil {
		return nil, toHTTPError(h.logger, "annotate-letter", err)
	}
	return &AnnotateLetterOutput{Body: res}, nil
}
