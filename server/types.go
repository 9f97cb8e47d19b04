package server

import (
	"math"
	"time"

	"github.com/jtejido/fingerlive/attack"
	"github.com/jtejido/fingerlive/liveness"
	"github.com/jtejido/fingerlive/session"
	"github.com/jtejido/fingerlive/store"
)

// Commands accepted on the stream.
const (
	CommandStart = "START_ANALYSIS"
	CommandReset = "RESET"
	CommandSave  = "SAVE_RESULT"
	CommandStop  = "STOP_ANALYSIS"
)

var commands = []string{CommandStart, CommandReset, CommandSave, CommandStop}

// FrameRequest carries one camera frame as base64 or a data URL. When
// FingerDetected is omitted the server runs its own presence detector.
type FrameRequest struct {
	Type           string `json:"type,omitempty"`
	Frame          string `json:"frame"`
	FingerDetected *bool  `json:"finger_detected,omitempty"`
	Command        string `json:"command,omitempty"`
}

type UIElements struct {
	Instruction string  `json:"instruction"`
	Progress    float64 `json:"progress"`
}

// ResultMessage is sent for every analyzed frame. Scores and confidence are
// percentages.
type ResultMessage struct {
	Type            string                         `json:"type"`
	Session         string                         `json:"session,omitempty"`
	Timestamp       string                         `json:"timestamp"`
	FrameCount      int                            `json:"frame_count"`
	Status          liveness.Status                `json:"status"`
	FingerDetected  bool                           `json:"finger_detected"`
	Scores          map[string]float64             `json:"scores"`
	Result          *string                        `json:"result"`
	AttackType      *string                        `json:"attack_type"`
	Confidence      float64                        `json:"confidence"`
	ConfidenceLevel string                         `json:"confidence_level,omitempty"`
	UIElements      UIElements                     `json:"ui_elements"`
	FramesAnalyzed  int                            `json:"frames_analyzed"`
	Attacks         map[attack.Kind]attack.Verdict `json:"attacks"`
	AutoRestarted   bool                           `json:"auto_restarted,omitempty"`
}

type StatusMessage struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	AnalysisActive *bool  `json:"analysis_active,omitempty"`
}

type SaveMessage struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	Filename     string `json:"filename"`
	MetadataFile string `json:"metadata_file"`
	SaveCount    int    `json:"save_count"`
}

type ConnectionMessage struct {
	Type     string   `json:"type"`
	Message  string   `json:"message"`
	Status   string   `json:"status"`
	Session  string   `json:"session"`
	Commands []string `json:"commands"`
	Note     string   `json:"note"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func percent(v float64) float64 {
	return math.Round(v*100*100) / 100
}

// NewResultMessage converts a session update into its wire form.
func NewResultMessage(id string, u session.Update) ResultMessage {
	r := u.Result
	scores := make(map[string]float64, len(liveness.Methods)+1)
	for _, m := range liveness.Methods {
		v, _ := r.Scores.Get(m)
		scores[m] = percent(v)
	}
	scores["overall"] = percent(r.OverallScore)

	msg := ResultMessage{
		Type:            "result",
		Session:         id,
		Timestamp:       u.Timestamp.Format(time.RFC3339Nano),
		FrameCount:      u.FrameCount,
		Status:          r.Status,
		FingerDetected:  u.FingerDetected,
		Scores:          scores,
		Confidence:      percent(r.Confidence),
		ConfidenceLevel: r.ConfidenceLevel,
		UIElements: UIElements{
			Instruction: r.Instruction,
			Progress:    math.Round(r.Progress*10) / 10,
		},
		FramesAnalyzed: r.FramesAnalyzed,
		Attacks:        r.Attacks,
		AutoRestarted:  u.Restarted,
	}
	if r.Final() {
		status := string(r.Status)
		msg.Result = &status
	}
	if r.AttackType != attack.None {
		kind := string(r.AttackType)
		msg.AttackType = &kind
	}
	return msg
}

func statusMessage(text string, active ...bool) StatusMessage {
	m := StatusMessage{Type: "status", Message: text}
	if len(active) > 0 {
		m.AnalysisActive = &active[0]
	}
	return m
}

func errorMessage(text string) StatusMessage {
	return StatusMessage{Type: "error", Message: text}
}

func saveMessage(s store.Saved) SaveMessage {
	return SaveMessage{
		Type:         "save_result",
		Message:      "Result saved",
		Filename:     s.Image,
		MetadataFile: s.Metadata,
		SaveCount:    s.Count,
	}
}
