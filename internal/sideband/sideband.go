// Package sideband publishes bead/phase context to out-of-band files that
// a status renderer polls. Publishing is best-effort on every path: a
// status line is decoration, never a reason to fail the operation that
// produced it.
package sideband

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Sender identifies this producer in structured envelopes.
const Sender = "gait"

// Channel is the structured sideband channel for phase updates.
const Channel = "phase"

// Payload is the message body shared by both write targets.
type Payload struct {
	ID     string `json:"id"`
	Phase  string `json:"phase"`
	Reason string `json:"reason,omitempty"`
	TS     string `json:"ts"`
}

// Envelope wraps a payload with routing metadata for the structured
// sideband location.
type Envelope struct {
	Sender  string  `json:"sender"`
	Channel string  `json:"channel"`
	Session string  `json:"session"`
	Payload Payload `json:"payload"`
}

// EnvelopeWriter delivers an envelope to the structured sideband channel.
// The host application resolves a concrete writer once at startup; a nil
// writer means the structured channel is unavailable and only the legacy
// flat file is written.
type EnvelopeWriter interface {
	WriteEnvelope(env *Envelope) error
}

// Publisher writes phase context to the structured channel (when a writer
// is available) and always to a legacy flat file per session.
type Publisher struct {
	projectRoot string
	session     string
	writer      EnvelopeWriter
}

// NewPublisher builds a publisher rooted at the project directory. writer
// may be nil.
func NewPublisher(projectRoot, session string, writer EnvelopeWriter) *Publisher {
	if session == "" {
		session = "default"
	}
	return &Publisher{projectRoot: projectRoot, session: session, writer: writer}
}

// Available reports whether the structured channel has a writer.
func (p *Publisher) Available() bool {
	return p != nil && p.writer != nil
}

// LegacyPath is the flat-file location a renderer polls for this session.
func (p *Publisher) LegacyPath() string {
	return filepath.Join(p.projectRoot, ".beads", "gait-status-"+p.session+".json")
}

// Publish writes the payload to both targets. Failures on either target
// are swallowed; the legacy write uses temp-file-then-rename so a polling
// reader never sees a partial file.
func (p *Publisher) Publish(beadID, phaseName, reason string) {
	if p == nil {
		return
	}
	payload := Payload{
		ID:     beadID,
		Phase:  phaseName,
		Reason: reason,
		TS:     time.Now().UTC().Format(time.RFC3339),
	}

	if p.writer != nil {
		env := &Envelope{
			Sender:  Sender,
			Channel: Channel,
			Session: p.session,
			Payload: payload,
		}
		_ = p.writer.WriteEnvelope(env)
	}

	p.writeLegacy(payload)
}

func (p *Publisher) writeLegacy(payload Payload) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	target := p.LegacyPath()
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(dir, ".gait-sideband-*")
	if err != nil {
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
	}
}

// FileEnvelopeWriter is the default structured-channel implementation. It
// writes envelopes under .beads/sideband/<channel>/<session>.json using
// the same atomic-replace discipline as the legacy path.
type FileEnvelopeWriter struct {
	projectRoot string
}

// NewFileEnvelopeWriter returns a writer rooted at the project directory.
func NewFileEnvelopeWriter(projectRoot string) *FileEnvelopeWriter {
	return &FileEnvelopeWriter{projectRoot: projectRoot}
}

// Path is the structured location for an envelope.
func (w *FileEnvelopeWriter) Path(channel, session string) string {
	return filepath.Join(w.projectRoot, ".beads", "sideband", channel, session+".json")
}

// WriteEnvelope serializes and atomically replaces the per-session file.
func (w *FileEnvelopeWriter) WriteEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	target := w.Path(env.Channel, env.Session)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".gait-env-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
