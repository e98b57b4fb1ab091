package decision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/tiiuae/patrolengine/internal/types"
)

const replyFormat = `Reply with a single JSON object and nothing else:
{
  "next_mode": one of PATROL, INVESTIGATION, EMERGENCY_HANDLING, NON_EMERGENCY_HANDLING or null to stay,
  "actions": list of action names,
  "target": {"x": 0..1, "y": 0..1} normalized image coordinates when moving, otherwise omit,
  "emergency": {"type": car_crash|fire|medical_emergency|natural_disaster|suspicious_activity|other, "location": {"x":..,"y":..}, "severity": 1..5, "description": ".."} or omit,
  "observation": {"type": damaged_infrastructure|smoke|suspicious_activity|environmental_issue|other, "location": {"x":..,"y":..}, "description": ".."} or omit,
  "message": text for audio_message, otherwise omit,
  "summary": one sentence describing the image
}`

var modePrompts = map[types.MissionMode]string{
	types.ModePatrol: `You are a drone operator monitoring the environment from the drone camera.
If you see something unusual set next_mode to INVESTIGATION.
Otherwise keep patrolling with the follow_path action.
Allowed actions: follow_path, none.`,

	types.ModeInvestigation: `You are an investigation drone operator. Investigate objects detected in the image.
Pick the most important observation. If it is far away, get closer with move_to_image_coordinates and a target.
When close enough set next_mode:
- PATROL if the observation turns out to be uninteresting
- EMERGENCY_HANDLING if it is an emergency (car crash, injured people, fire, natural disaster, suspicious activity); fill in emergency
- NON_EMERGENCY_HANDLING if it is notable but not an emergency (damaged infrastructure, smoke from non-emergency sources, environmental issues); fill in observation
Allowed actions: move_to_image_coordinates, none.`,

	types.ModeEmergencyHandling: `You are an emergency response drone operator handling an ongoing emergency.
Assess the situation, call emergency services with type, location and severity, and keep observing from a safe distance.
Use call_siren or audio_message to attract attention or instruct people nearby.
Set next_mode to PATROL only when the situation is resolved.
Allowed actions: call_siren, audio_message, call_emergency_services, observe_and_report_emergency, move_to_image_coordinates, none.`,

	types.ModeNonEmergencyHandling: `You are a maintenance drone operator handling a non-emergency observation.
Report the observation with details, then investigate it. Use audio_message to instruct people nearby if necessary.
Set next_mode to EMERGENCY_HANDLING and fill in emergency if the situation turns out to be an emergency.
Set next_mode to PATROL when the observation is documented.
Allowed actions: report_observation, investigate_observation, move_to_image_coordinates, audio_message, none.`,
}

type OpenAIEngine struct {
	client    *openai.Client
	model     string
	maxTokens int
	log       *zap.Logger
}

func NewOpenAIEngine(client *openai.Client, model string, maxTokens int, log *zap.Logger) *OpenAIEngine {
	return &OpenAIEngine{client, model, maxTokens, log}
}

func (e *OpenAIEngine) Decide(ctx context.Context, frame *types.Frame, mode types.MissionMode) (types.Decision, error) {
	prompt, ok := modePrompts[mode]
	if !ok {
		return types.Decision{}, errors.WithMessagef(ErrInvalidDecision, "no prompt for mode %v", mode)
	}
	if frame == nil || len(frame.Data) == 0 {
		return types.Decision{}, errors.WithMessage(ErrInvalidDecision, "no frame")
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame.Data)

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: prompt + "\n\n" + replyFormat,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: fmt.Sprintf("Current mode: %v. Analyze the camera image.", mode),
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return types.Decision{}, errors.WithMessage(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return types.Decision{}, errors.WithMessage(ErrInvalidDecision, "empty completion")
	}

	content := resp.Choices[0].Message.Content
	e.log.Debug("decision reply", zap.Stringer("mode", mode), zap.String("content", content))

	return parseDecision(content)
}

// parseDecision decodes the model reply. Unknown actions or enum values make
// the whole decision invalid; severity is left to the ledger to judge.
func parseDecision(content string) (types.Decision, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var d types.Decision
	if err := json.Unmarshal([]byte(content), &d); err != nil {
		return types.Decision{}, errors.WithMessage(ErrInvalidDecision, err.Error())
	}

	for _, a := range d.Actions {
		if !a.Valid() {
			return types.Decision{}, errors.WithMessagef(ErrInvalidDecision, "unknown action '%s'", a)
		}
	}
	if d.Emergency != nil && !d.Emergency.Type.Valid() {
		return types.Decision{}, errors.WithMessagef(ErrInvalidDecision, "unknown emergency type '%s'", d.Emergency.Type)
	}
	if d.Observation != nil && !d.Observation.Type.Valid() {
		return types.Decision{}, errors.WithMessagef(ErrInvalidDecision, "unknown observation type '%s'", d.Observation.Type)
	}

	return d, nil
}
