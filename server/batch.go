package server

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jtejido/fingerlive/frame"
)

const minBatchFrames = 2

// BatchRequest submits a whole capture in one call. Frames are base64 or
// data URLs, in capture order.
type BatchRequest struct {
	Frames         []string `json:"frames"`
	FingerDetected *bool    `json:"finger_detected,omitempty"`
}

// livenessCheck analyzes a capture on a throwaway session and answers with
// the first verdict, or with the progress reached when the capture ran out.
// Frames come as a JSON BatchRequest or as multipart files under "frames".
func (s *Server) livenessCheck(c *fiber.Ctx) error {
	var (
		frames   []*frame.Frame
		detected *bool
		err      error
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		frames, detected, err = s.multipartFrames(c)
	} else {
		frames, detected, err = s.jsonFrames(c)
	}
	if err != nil {
		return err
	}

	ctrl := s.sessions.Detached()
	defer ctrl.Close()
	u, err := ctrl.Analyze(frames, detected)
	if err != nil {
		return httpError(err)
	}
	s.log.Info().
		Str("session", ctrl.ID()).
		Int("frames", len(frames)).
		Str("status", string(u.Result.Status)).
		Msg("batch analyzed")
	return c.JSON(NewResultMessage(ctrl.ID(), u))
}

func (s *Server) checkBatchSize(n int) error {
	if n < minBatchFrames {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("At least %d frames required", minBatchFrames))
	}
	if n > s.maxFrames {
		return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("At most %d frames accepted, got %d", s.maxFrames, n))
	}
	return nil
}

func (s *Server) jsonFrames(c *fiber.Ctx) ([]*frame.Frame, *bool, error) {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.checkBatchSize(len(req.Frames)); err != nil {
		return nil, nil, err
	}

	frames := make([]*frame.Frame, 0, len(req.Frames))
	for i, payload := range req.Frames {
		f, err := s.decoder.DecodeBase64(payload)
		if err != nil {
			return nil, nil, decodeError(fmt.Errorf("frame %d: %w", i, err))
		}
		frames = append(frames, f)
	}
	return frames, req.FingerDetected, nil
}

func (s *Server) multipartFrames(c *fiber.Ctx) ([]*frame.Frame, *bool, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "Invalid multipart form: "+err.Error())
	}
	files := form.File["frames"]
	if err := s.checkBatchSize(len(files)); err != nil {
		return nil, nil, err
	}

	var detected *bool
	if v := form.Value["finger_detected"]; len(v) > 0 {
		b, err := strconv.ParseBool(v[0])
		if err != nil {
			return nil, nil, fiber.NewError(fiber.StatusBadRequest, "finger_detected must be a boolean")
		}
		detected = &b
	}

	frames := make([]*frame.Frame, 0, len(files))
	for i, fh := range files {
		r, err := fh.Open()
		if err != nil {
			return nil, nil, err
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			return nil, nil, err
		}
		f, err := s.decoder.Decode(data)
		if err != nil {
			return nil, nil, decodeError(fmt.Errorf("frame %d (%s): %w", i, fh.Filename, err))
		}
		frames = append(frames, f)
	}
	return frames, detected, nil
}
