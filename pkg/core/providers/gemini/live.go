// Package gemini implements the realtime model transport over the Gemini
// Live (BidiGenerateContent) websocket API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bucketworks/kiosk/pkg/core/audio"
	"github.com/bucketworks/kiosk/pkg/core/dispatch"
	"github.com/bucketworks/kiosk/pkg/core/live"
)

// DefaultEndpoint is the production Live API websocket endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Option configures the Client.
type Option func(*Client)

// WithEndpoint overrides the websocket endpoint. Used for tests and proxies.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHandshakeTimeout bounds the wait for setup acknowledgment.
// Default: 15s.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.handshakeTimeout = d
	}
}

// Client dials Live API sessions. It implements live.ModelClient.
type Client struct {
	apiKey           string
	endpoint         string
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
}

// NewClient creates a Live API client with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:           apiKey,
		endpoint:         DefaultEndpoint,
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the websocket, performs the setup handshake, and blocks until
// the service acknowledges with setupComplete.
func (c *Client) Connect(ctx context.Context, cfg live.Config) (live.ModelStream, error) {
	endpoint, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("key", c.apiKey)
	endpoint.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live api: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live api: %w", err)
	}

	stream := &Stream{conn: conn}
	if err := stream.setup(cfg, c.handshakeTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return stream, nil
}

// Stream is one connected Live API session. Writes are serialized; Receive
// must be called from a single goroutine.
type Stream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) setup(cfg live.Config, timeout time.Duration) error {
	msg := setupMessage{
		Setup: setupPayload{
			Model: cfg.Model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			Tools:                    declarationsFromManifest(cfg.Tools),
			OutputAudioTranscription: &struct{}{},
		},
	}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &contentPayload{
			Parts: []partPayload{{Text: cfg.SystemInstruction}},
		}
	}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}

	s.conn.SetReadDeadline(time.Now().Add(timeout))
	defer s.conn.SetReadDeadline(time.Time{})
	for {
		var ack serverMessage
		if err := s.readJSON(&ack); err != nil {
			return fmt.Errorf("await setup ack: %w", err)
		}
		if ack.SetupComplete != nil {
			return nil
		}
	}
}

// SendAudio forwards one captured audio chunk as a realtime media chunk.
func (s *Stream) SendAudio(_ context.Context, mimeType string, data []byte) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineBlob{{
				MimeType: mimeType,
				Data:     audio.Encode(data),
			}},
		},
	}
	return s.writeJSON(msg)
}

// SendToolResponses returns the results of an executed tool-call batch.
func (s *Stream) SendToolResponses(_ context.Context, responses []dispatch.ToolResponse) error {
	out := make([]functionResponse, len(responses))
	for i, r := range responses {
		out[i] = functionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"result": r.Result},
		}
	}
	return s.writeJSON(toolResponseMessage{
		ToolResponse: toolResponsePayload{FunctionResponses: out},
	})
}

// Receive blocks for the next server frame and maps it to the neutral form.
func (s *Stream) Receive() (*live.ServerMessage, error) {
	var raw serverMessage
	if err := s.readJSON(&raw); err != nil {
		return nil, err
	}

	msg := &live.ServerMessage{}
	if raw.SetupComplete != nil {
		msg.SetupComplete = true
	}
	if raw.ToolCall != nil {
		for _, fc := range raw.ToolCall.FunctionCalls {
			msg.ToolCalls = append(msg.ToolCalls, dispatch.ToolCall{
				ID:   fc.ID,
				Name: fc.Name,
				Args: fc.Args,
			})
		}
	}
	if sc := raw.ServerContent; sc != nil {
		msg.TurnComplete = sc.TurnComplete
		if sc.OutputTranscription != nil {
			msg.Transcript = sc.OutputTranscription.Text
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					msg.AudioB64 = part.InlineData.Data
					break
				}
			}
		}
	}
	return msg, nil
}

// Close sends a best-effort close frame and tears down the connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Stream) readJSON(v any) error {
	_, payload, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
