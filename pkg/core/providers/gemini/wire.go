package gemini

import "github.com/bucketworks/kiosk/pkg/core/dispatch"

// Wire types for the BidiGenerateContent websocket protocol. Field names
// follow the service's JSON exactly.

type setupMessage struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *contentPayload  `json:"systemInstruction,omitempty"`
	Tools                    []toolPayload    `json:"tools,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type contentPayload struct {
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineBlob `json:"inlineData,omitempty"`
}

type inlineBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolPayload struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Parameters  *schema `json:"parameters,omitempty"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineBlob `json:"mediaChunks"`
}

type toolResponseMessage struct {
	ToolResponse toolResponsePayload `json:"toolResponse"`
}

type toolResponsePayload struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type serverMessage struct {
	SetupComplete *struct{}       `json:"setupComplete,omitempty"`
	ServerContent *serverContent  `json:"serverContent,omitempty"`
	ToolCall      *toolCallNotice `json:"toolCall,omitempty"`
}

type serverContent struct {
	ModelTurn           *contentPayload `json:"modelTurn,omitempty"`
	TurnComplete        bool            `json:"turnComplete,omitempty"`
	Interrupted         bool            `json:"interrupted,omitempty"`
	OutputTranscription *transcription  `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type toolCallNotice struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// declarationsFromManifest translates the kiosk's provider-neutral tool
// manifest into the function-calling schema the service expects.
func declarationsFromManifest(specs []dispatch.ToolSpec) []toolPayload {
	if len(specs) == 0 {
		return nil
	}
	decls := make([]functionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decl := functionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if len(spec.Parameters) > 0 {
			props := make(map[string]*schema, len(spec.Parameters))
			for name, p := range spec.Parameters {
				props[name] = &schema{
					Type:        p.Type,
					Description: p.Description,
					Enum:        p.Enum,
				}
			}
			decl.Parameters = &schema{
				Type:       "OBJECT",
				Properties: props,
				Required:   spec.Required,
			}
		}
		decls = append(decls, decl)
	}
	return []toolPayload{{FunctionDeclarations: decls}}
}
