package channel

import "context"

// Adapter is the base interface every channel adapter must implement.
type Adapter interface {
	Type() ChannelType
	Descriptor() Descriptor
}

// Decoder maps a provider-specific event payload to a canonical Turn.
type Decoder interface {
	Decode(payload map[string]any) (Turn, error)
}

// Poster delivers a reply text to a target on the channel.
type Poster interface {
	Post(ctx context.Context, target string, text string) error
}
