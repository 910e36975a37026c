package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/zynerotech/eventrelay/codec"
	"github.com/zynerotech/eventrelay/eventbus"
	"github.com/zynerotech/eventrelay/relay"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 1000
)

// StatusReporter reports relay status. *relay.Relay satisfies it.
type StatusReporter interface {
	Status() relay.Status
}

// API exposes the event bus over HTTP:
//
//	POST /events         raise an event locally and relay it
//	GET  /events/recent  latest events received from other instances
//	GET  /status         relay state and identity
//	GET  /types          registered payload type names
type API struct {
	bus    *eventbus.Bus
	codec  *codec.Codec
	status StatusReporter
}

// NewAPI creates the handlers. Register mounts them on a fiber router.
func NewAPI(bus *eventbus.Bus, c *codec.Codec, status StatusReporter) *API {
	return &API{bus: bus, codec: c, status: status}
}

// Register mounts the routes on r.
func (a *API) Register(r fiber.Router) {
	r.Post("/events", a.raise)
	r.Get("/events/recent", a.recent)
	r.Get("/status", a.getStatus)
	r.Get("/types", a.types)
}

type raiseRequest struct {
	EventID    string             `json:"event_id"`
	Parameters *requestParameters `json:"parameters"`
}

type requestParameters struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (a *API) raise(c *fiber.Ctx) error {
	var req raiseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.EventID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "event_id is required")
	}

	var params any
	if req.Parameters != nil {
		if req.Parameters.Type == "" {
			return fiber.NewError(fiber.StatusBadRequest, "parameters.type is required")
		}
		v, err := a.codec.DecodeParameters(req.Parameters.Type, req.Parameters.Value)
		if err != nil {
			if errors.Is(err, codec.ErrUnknownPayloadType) {
				return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
			}
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		params = v
	}

	e := a.bus.Raise(c.UserContext(), req.EventID, params)

	data, err := a.codec.Encode(e)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusAccepted).Send(data)
}

func (a *API) recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultRecentLimit)
	if limit <= 0 || limit > maxRecentLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 1000")
	}

	events := a.bus.Recent(limit)
	out := make([]json.RawMessage, 0, len(events))
	for _, e := range events {
		data, err := a.codec.Encode(e)
		if err != nil {
			return err
		}
		out = append(out, data)
	}
	return c.JSON(out)
}

func (a *API) getStatus(c *fiber.Ctx) error {
	return c.JSON(a.status.Status())
}

func (a *API) types(c *fiber.Ctx) error {
	return c.JSON(a.codec.Registry().Names())
}
