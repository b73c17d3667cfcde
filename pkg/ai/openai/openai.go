package openai

import (
	"sync"

	"github.com/OFFIS-RIT/threadgraph/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// GraphOpenAIClient talks to OpenAI-compatible endpoints. The chat endpoint
// serves the entity filter; the sequence endpoint serves the
// relation-extraction model, usually a self-hosted server such as vLLM.
//
// A GraphOpenAIClient should be created using NewGraphOpenAIClient.
type GraphOpenAIClient struct {
	chatModel     string
	sequenceModel string

	chatURL     string
	sequenceURL string

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient     *openai.Client
	SequenceClient *openai.Client
}

// NewGraphOpenAIClientParams configures a GraphOpenAIClient.
//
// ChatModel is used for completions and structured output, SequenceModel
// for GenerateSequences. An endpoint without a key is left unconfigured.
type NewGraphOpenAIClientParams struct {
	ChatModel     string
	SequenceModel string

	ChatURL     string
	ChatKey     string
	SequenceURL string
	SequenceKey string
}

// NewGraphOpenAIClient creates a client with separate connections for chat
// and sequence generation.
//
// Example:
//
//	client := openai.NewGraphOpenAIClient(openai.NewGraphOpenAIClientParams{
//		ChatModel:     "gpt-4o-mini",
//		ChatKey:       os.Getenv("AI_CHAT_KEY"),
//		SequenceModel: "Babelscape/rebel-large",
//		SequenceURL:   "http://localhost:8000/v1",
//		SequenceKey:   "local",
//	})
func NewGraphOpenAIClient(
	params NewGraphOpenAIClientParams,
) *GraphOpenAIClient {
	return &GraphOpenAIClient{
		chatModel:     params.ChatModel,
		sequenceModel: params.SequenceModel,

		chatURL:     params.ChatURL,
		sequenceURL: params.SequenceURL,

		metricsLock: sync.Mutex{},

		ChatClient:     newOpenaiClient(params.ChatURL, params.ChatKey),
		SequenceClient: newOpenaiClient(params.SequenceURL, params.SequenceKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
