package ai

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Transformation modes
const (
	ModeSummarize = "resumen"
	ModeImprove   = "mejora"
)

// DemoMarker prefixes every degraded result so the client can tell it apart
// from real model output.
const DemoMarker = "⚠️ Modo demo (sin saldo)"

// Generator is the chat completion call the transform service depends on
type Generator interface {
	Chat(ctx context.Context, model, system, user string) (string, error)
}

// TransformService turns a mode/text/tone request into a completion, with a
// one-shot model fallback and a degraded demo path for balance exhaustion.
type TransformService struct {
	client        Generator
	primaryModel  string
	fallbackModel string
}

// NewTransformService creates a transform service
func NewTransformService(client Generator, primaryModel, fallbackModel string) *TransformService {
	return &TransformService{
		client:        client,
		primaryModel:  primaryModel,
		fallbackModel: fallbackModel,
	}
}

// Transform generates the transformed text. demo is true when the provider
// exhausted its balance and the extractive fallback produced the result;
// the caller's quota charge is unaffected either way, it was levied at
// admission time.
func (s *TransformService) Transform(ctx context.Context, mode, text, tone string) (result string, demo bool, err error) {
	system := SystemPrompt
	var user string
	if mode == ModeSummarize {
		user = SummarizePrompt(text)
	} else {
		user = ImprovePrompt(text, tone)
	}

	result, err = s.client.Chat(ctx, s.primaryModel, system, user)
	if err != nil {
		log.Printf("[ai] primary model %s failed: %v", s.primaryModel, err)
		result, err = s.client.Chat(ctx, s.fallbackModel, system, user)
	}
	if err != nil {
		if IsInsufficientQuota(err) {
			return DemoResult(mode, text), true, nil
		}
		return "", false, fmt.Errorf("generation failed: %w", err)
	}

	return result, false, nil
}

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)
var whitespace = regexp.MustCompile(`\s+`)

// DemoResult produces the degraded substitute: a naive extractive reduction
// for summarize mode, a whitespace-normalized echo for rewrite mode.
func DemoResult(mode, text string) string {
	if mode == ModeSummarize {
		sentences := sentenceEnd.Split(text, -1)
		bullets := make([]string, 0, 3)
		for _, s := range sentences {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			bullets = append(bullets, s)
			if len(bullets) == 3 {
				break
			}
		}
		return fmt.Sprintf("%s\n\n• %s", DemoMarker, strings.Join(bullets, "\n• "))
	}

	return fmt.Sprintf("%s\n\n%s", DemoMarker, strings.TrimSpace(whitespace.ReplaceAllString(text, " ")))
}
