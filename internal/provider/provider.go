// Package provider defines the uniform contract every AI backend implements
// and the registry that maps AI types to an ordered list of capable backends.
package provider

import (
	"context"
	"errors"

	"github.com/ai-platform/aiplatform/internal/model"
)

// Capability is one concrete operation a provider can perform.
type Capability string

const (
	ChatCompletion Capability = "chat_completion"
	ImageFromText  Capability = "image_from_text"
	ImageFromImage Capability = "image_from_image"
	ThreeDCreate   Capability = "3d_create"
	ThreeDRefine   Capability = "3d_refine"
	ThreeDStatus   Capability = "3d_status"
)

// ErrorKind classifies provider failures so callers can decide
// retry/fallback per kind instead of parsing message strings.
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "invalid_input"
	KindUnavailable  ErrorKind = "unavailable"
	KindUpstream     ErrorKind = "upstream_error"
	KindTimeout      ErrorKind = "timeout"
	KindParse        ErrorKind = "parse_error"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

// Errorf builds a classified error.
func Errorf(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the classification of err, or KindUpstream for errors that
// did not originate from a provider.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstream
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Request carries the normalized parameters of a provider invocation.
type Request struct {
	Capability Capability
	Model      string
	Prompt     string
	ImageURL   string // multimodal analysis / image-to-image source
	TaskID     string // 3D refine and status
	ArtStyle   string // 3D create
	Seed       int    // 3D create
	Size       string // image generation, e.g. "1024*1024"
}

// Response is a successful provider result. Exactly one of Text, ImageURL or
// TaskID is meaningful depending on the capability; Raw carries the full
// upstream payload for status polls.
type Response struct {
	Text     string
	ImageURL string
	TaskID   string
	Raw      []byte
}

// Client is the uniform capability contract of one AI backend.
type Client interface {
	// Name identifies the provider in logs and status responses.
	Name() string
	// Available is a cheap, side-effect-free readiness check. It must never
	// panic; configuration faults map to false.
	Available() bool
	// Invoke performs the actual call. Failures are returned as *Error so
	// the router can surface the kind unchanged.
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Registry maps each AI type to an ordered list of capable providers
// (primary first, optional fallback after).
type Registry struct {
	routes map[model.AiType][]Client
}

// NewRegistry builds the capability table. New providers are added here,
// without touching dispatch logic.
func NewRegistry(chat, local, image, threeD Client) *Registry {
	chatChain := []Client{}
	if chat != nil {
		chatChain = append(chatChain, chat)
	}
	if local != nil {
		chatChain = append(chatChain, local)
	}
	return &Registry{
		routes: map[model.AiType][]Client{
			model.AiTypeConversation: chatChain,
			model.AiTypeTextToText:   chatChain,
			model.AiTypeAudioToText:  chatChain,
			model.AiTypeTextToImage:  {image},
			model.AiTypeImageToImage: {image},
			model.AiTypeTextTo3D:     {threeD},
		},
	}
}

// CapabilityFor derives the invocation capability from the chat's AI type.
// 3D requests distinguish create from refine via the request mode.
func CapabilityFor(aiType model.AiType, refine bool) Capability {
	switch aiType {
	case model.AiTypeTextToImage:
		return ImageFromText
	case model.AiTypeImageToImage:
		return ImageFromImage
	case model.AiTypeTextTo3D:
		if refine {
			return ThreeDRefine
		}
		return ThreeDCreate
	default:
		return ChatCompletion
	}
}

// Resolve returns the first available provider for the AI type. When no
// provider is available it fails with KindUnavailable without invoking
// anything. Unknown AI types resolve as conversation.
func (r *Registry) Resolve(aiType model.AiType) (Client, error) {
	chain, ok := r.routes[aiType]
	if !ok {
		chain = r.routes[model.AiTypeConversation]
	}
	for _, c := range chain {
		if c != nil && c.Available() {
			return c, nil
		}
	}
	return nil, Errorf(KindUnavailable, "no provider available for AI type "+string(aiType))
}

// Providers returns the full chain for an AI type, for status reporting.
func (r *Registry) Providers(aiType model.AiType) []Client {
	return r.routes[aiType]
}
