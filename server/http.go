package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/jtejido/fingerlive/frame"
	"github.com/jtejido/fingerlive/metrics"
	"github.com/jtejido/fingerlive/session"
)

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             s.cfg.MaxMessageBytes,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(ErrorResponse{
				Error: err.Error(),
			})
		},
	})

	// Middleware
	app.Use(logger.New(logger.Config{Output: s.log}))
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"time":     time.Now(),
			"sessions": s.sessions.Len(),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.registry)))

	sessions := app.Group("/sessions")
	sessions.Post("/", s.createSession)
	sessions.Get("/:id", s.getSession)
	sessions.Delete("/:id", s.deleteSession)
	sessions.Post("/:id/start", s.startSession)
	sessions.Post("/:id/frames", s.submitFrame)
	sessions.Post("/:id/reset", s.resetSession)
	sessions.Post("/:id/stop", s.stopSession)
	sessions.Post("/:id/save", s.saveResult)

	app.Post("/liveness_check", s.livenessCheck)

	return app
}

// httpError maps session and frame errors onto status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		return fiber.NewError(fiber.StatusGone, err.Error())
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrNotLive), errors.Is(err, session.ErrNoFrame):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, session.ErrNoStore):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, frame.ErrUnsupportedFormat):
		return fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, frame.ErrEmpty):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, frame.ErrTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	}
	return err
}

// decodeError reports any decode failure as a client error.
func decodeError(err error) error {
	var fe *fiber.Error
	if e := httpError(err); errors.As(e, &fe) {
		return e
	}
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

func (s *Server) controller(c *fiber.Ctx) (*session.Controller, error) {
	ctrl, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return nil, httpError(err)
	}
	return ctrl, nil
}

func (s *Server) createSession(c *fiber.Ctx) error {
	ctrl := s.sessions.Create()
	return c.Status(fiber.StatusCreated).JSON(ctrl.Snapshot())
}

func (s *Server) getSession(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	return c.JSON(ctrl.Snapshot())
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	if err := s.sessions.Close(c.Params("id")); err != nil {
		return httpError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) startSession(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	started, err := ctrl.Start()
	if err != nil {
		return httpError(err)
	}
	if !started {
		return c.JSON(statusMessage("Analysis already active"))
	}
	return c.JSON(statusMessage("Analysis started - send camera frames", true))
}

func (s *Server) resetSession(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.Reset(); err != nil {
		return httpError(err)
	}
	return c.JSON(statusMessage("Analysis reset"))
}

func (s *Server) stopSession(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	if err := ctrl.Stop(); err != nil {
		return httpError(err)
	}
	return c.JSON(statusMessage("Analysis stopped", false))
}

func (s *Server) submitFrame(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}

	var req FrameRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Frame == "" {
		return fiber.NewError(fiber.StatusBadRequest, "frame is required")
	}

	f, err := s.decoder.DecodeBase64(req.Frame)
	if err != nil {
		return decodeError(err)
	}

	u, err := s.process(ctrl, f, req.FingerDetected)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(NewResultMessage(ctrl.ID(), u))
}

func (s *Server) saveResult(c *fiber.Ctx) error {
	ctrl, err := s.controller(c)
	if err != nil {
		return err
	}
	saved, err := ctrl.Save()
	if err != nil {
		return httpError(err)
	}
	return c.JSON(saveMessage(saved))
}

func (s *Server) process(ctrl *session.Controller, f *frame.Frame, detected *bool) (session.Update, error) {
	if detected != nil {
		return ctrl.ProcessDetected(f, *detected)
	}
	return ctrl.Process(f)
}
