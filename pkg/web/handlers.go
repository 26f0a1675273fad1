package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-animatronic/pkg/clip"
	"github.com/teslashibe/go-animatronic/pkg/mixer"
)

// ClipInfo describes a loaded clip.
type ClipInfo struct {
	Name      string  `json:"name"`
	FrameRate float64 `json:"fps"`
	Frames    int     `json:"frames"`
	Duration  float64 `json:"duration"`
	Actuators []int   `json:"actuators"`
}

// CreateLayerRequest is the body of POST /api/layers.
type CreateLayerRequest struct {
	Clip      string   `json:"clip"`
	Name      string   `json:"name"`
	Weight    *float64 `json:"weight"`
	Loop      bool     `json:"loop"`
	Transient bool     `json:"transient"`
	Paused    bool     `json:"paused"`
}

// WeightRequest is the body of POST /api/layers/:name/weight.
// Duration is in seconds; zero sets the weight at once.
type WeightRequest struct {
	Weight   float64 `json:"weight"`
	Duration float64 `json:"duration"`
}

// PlayRequest is the optional body of POST /api/layers/:name/play.
type PlayRequest struct {
	From int   `json:"from"`
	Loop *bool `json:"loop"`
}

// RateRequest is the body of PUT /api/transport/rate.
type RateRequest struct {
	Hz float64 `json:"hz"`
}

var errLayerExists = errors.New("layer already exists")

func errorStatus(err error) int {
	switch {
	case errors.Is(err, clip.ErrClipNotFound),
		errors.Is(err, mixer.ErrLayerNotFound),
		errors.Is(err, mixer.ErrNoPlaylist):
		return fiber.StatusNotFound
	case errors.Is(err, errLayerExists):
		return fiber.StatusConflict
	case errors.Is(err, mixer.ErrInvalidFrameRate),
		errors.Is(err, mixer.ErrInvalidWeight),
		errors.Is(err, mixer.ErrInvalidDuration),
		errors.Is(err, mixer.ErrEmptyPlaylist),
		errors.Is(err, clip.ErrInvalidPlaylist):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}

func (s *Server) layer(c *fiber.Ctx) (*mixer.Layer, error) {
	name := c.Params("name")
	l := s.mixer.LayerByName(name)
	if l == nil {
		return nil, mixer.ErrLayerNotFound
	}
	return l, nil
}

// handleStatus returns the mixer snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.mixer.Status())
}

// handleListClips returns the loaded clips
func (s *Server) handleListClips(c *fiber.Ctx) error {
	names := s.clips.Names()
	infos := make([]ClipInfo, 0, len(names))
	for _, name := range names {
		cl, err := s.clips.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, ClipInfo{
			Name:      cl.Name(),
			FrameRate: cl.FrameRate(),
			Frames:    cl.FrameCount(),
			Duration:  cl.Duration(),
			Actuators: cl.Actuators(),
		})
	}
	return c.JSON(infos)
}

func (s *Server) handleListLayers(c *fiber.Ctx) error {
	return c.JSON(s.mixer.ActiveLayers())
}

func (s *Server) handleCreateLayer(c *fiber.Ctx) error {
	var req CreateLayerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid layer request: "+err.Error())
	}
	if req.Clip == "" {
		return badRequest(c, "clip is required")
	}

	cl, err := s.clips.Get(req.Clip)
	if err != nil {
		return fail(c, err)
	}
	name := req.Name
	if name == "" {
		name = cl.Name()
	}
	if s.mixer.LayerByName(name) != nil {
		return fail(c, errLayerExists)
	}

	var weight float64
	if req.Weight != nil {
		weight = *req.Weight
	}

	l := s.mixer.CreateLayer(cl, name, weight, req.Loop, req.Transient)
	if req.Weight == nil {
		// Without an explicit weight the layer fades in over the crossfade
		// window. A lone layer takes full weight at once.
		fade := s.mixer.Config().Crossfade
		if len(s.mixer.Layers()) == 1 {
			fade = 0
		}
		if err := s.mixer.AnimateLayerWeight(l, 1, fade); err != nil {
			s.mixer.RemoveLayer(l)
			return fail(c, err)
		}
	}
	if !req.Paused {
		l.Play()
	}
	s.logger.Info("layer added", "layer", name, "clip", cl.Name(), "weight", l.Weight())
	return c.Status(fiber.StatusCreated).JSON(l.Info())
}

func (s *Server) handleRemoveLayer(c *fiber.Ctx) error {
	l, err := s.layer(c)
	if err != nil {
		return fail(c, err)
	}
	if err := s.mixer.RemoveLayer(l); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleLayerWeight(c *fiber.Ctx) error {
	l, err := s.layer(c)
	if err != nil {
		return fail(c, err)
	}

	var req WeightRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid weight request: "+err.Error())
	}

	if !(req.Duration >= 0 && req.Duration <= mixer.MaxFadeDuration.Seconds()) {
		return badRequest(c, fmt.Sprintf("duration must be within [0, %g] seconds", mixer.MaxFadeDuration.Seconds()))
	}
	if req.Duration > 0 {
		err = s.mixer.AnimateLayerWeight(l, req.Weight, time.Duration(req.Duration*float64(time.Second)))
	} else {
		err = s.mixer.SetLayerWeight(l, req.Weight)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(l.Info())
}

func (s *Server) handleLayerAction(c *fiber.Ctx) error {
	l, err := s.layer(c)
	if err != nil {
		return fail(c, err)
	}

	switch action := c.Params("action"); action {
	case "play":
		var req PlayRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid play request: "+err.Error())
			}
		}
		if req.Loop != nil {
			l.PlayLoop(req.From, *req.Loop)
		} else {
			l.PlayFrom(req.From)
		}
	case "pause":
		l.Pause()
	case "resume":
		l.Resume()
	case "stop":
		l.Stop()
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown layer action: " + action,
		})
	}
	return c.JSON(l.Info())
}

func (s *Server) handleTransport(c *fiber.Ctx) error {
	switch action := c.Params("action"); action {
	case "play":
		s.mixer.Play()
	case "pause":
		s.mixer.Pause()
	case "stop":
		s.mixer.Stop()
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown transport action: " + action,
		})
	}
	return c.JSON(s.mixer.Status())
}

func (s *Server) handleFrameRate(c *fiber.Ctx) error {
	var req RateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid rate request: "+err.Error())
	}
	if err := s.mixer.SetFrameRate(req.Hz); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"frame_rate": s.mixer.FrameRate()})
}

func (s *Server) handlePlaylistState(c *fiber.Ctx) error {
	return c.JSON(s.mixer.PlaylistState())
}

func (s *Server) handleSetPlaylist(c *fiber.Ctx) error {
	p, err := clip.ParsePlaylist(c.Body())
	if err != nil {
		return fail(c, err)
	}
	if err := s.clips.ValidatePlaylist(p); err != nil {
		return fail(c, err)
	}
	if err := s.mixer.SetPlaylist(p); err != nil {
		return fail(c, err)
	}
	s.logger.Info("playlist started", "entries", p.Len())
	return c.JSON(s.mixer.PlaylistState())
}

func (s *Server) handleAdvancePlaylist(c *fiber.Ctx) error {
	if err := s.mixer.AdvancePlaylist(); err != nil {
		return fail(c, err)
	}
	return c.JSON(s.mixer.PlaylistState())
}

func (s *Server) handleResetPlaylist(c *fiber.Ctx) error {
	s.mixer.ResetPlaylist()
	return c.SendStatus(fiber.StatusNoContent)
}
