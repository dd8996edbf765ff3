package endpoints

import (
	"github.com/easelhq/easel/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Deck endpoints
		&CreateDeckEndpoint{},
		&ListDecksEndpoint{},
		&GetDeckEndpoint{},
		&DeleteDeckEndpoint{},
		&ActivateDeckEndpoint{},

		// Outline synthesis
		&SynthesizeOutlineEndpoint{},

		// Batch generation endpoints
		&StartBatchEndpoint{},
		&PauseBatchEndpoint{},
		&ResumeBatchEndpoint{},
		&RetryBatchEndpoint{},

		// Slide endpoints
		&ListSlidesEndpoint{},
		&RunSlideEndpoint{},
		&RetrySlideEndpoint{},
		&StopSlideEndpoint{},
		&SkipSlideEndpoint{},
		&UploadSlideImageEndpoint{},
		&SlideImageEndpoint{},
		&SlidePreviewEndpoint{},

		// Storage endpoints
		&StorageStatsEndpoint{},
	}
}

// DeckCommands returns the endpoints whose CLI commands are grouped under the
// "decks" subcommand.
func DeckCommands() []api.Endpoint {
	return []api.Endpoint{
		&CreateDeckEndpoint{},
		&ListDecksEndpoint{},
		&GetDeckEndpoint{},
		&DeleteDeckEndpoint{},
		&ActivateDeckEndpoint{},
		&SynthesizeOutlineEndpoint{},
		&ListSlidesEndpoint{},
	}
}

// GenerateCommands returns the endpoints whose CLI commands are grouped under
// the "generate" subcommand.
func GenerateCommands() []api.Endpoint {
	return []api.Endpoint{
		&StartBatchEndpoint{},
		&PauseBatchEndpoint{},
		&ResumeBatchEndpoint{},
		&RetryBatchEndpoint{},
		&RunSlideEndpoint{},
		&RetrySlideEndpoint{},
		&StopSlideEndpoint{},
		&SkipSlideEndpoint{},
		&UploadSlideImageEndpoint{},
	}
}
