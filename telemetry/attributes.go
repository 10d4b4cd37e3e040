package telemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for agent observability spans and metrics, following
// the gen_ai semantic convention namespace.
var (
	AttrOperationName = attribute.Key("gen_ai.operation.name")
	AttrAgentName     = attribute.Key("gen_ai.agent.name")
	AttrSystemPrompt  = attribute.Key("gen_ai.system.instructions")

	AttrUsageInputTokens      = attribute.Key("gen_ai.usage.input_tokens")
	AttrUsageOutputTokens     = attribute.Key("gen_ai.usage.output_tokens")
	AttrUsageTotalTokens      = attribute.Key("gen_ai.usage.total_tokens")
	AttrUsageCacheReadTokens  = attribute.Key("gen_ai.usage.cache_read_input_tokens")
	AttrUsageCacheWriteTokens = attribute.Key("gen_ai.usage.cache_write_input_tokens")

	AttrResponseLatencyMs    = attribute.Key("gen_ai.response.latency_ms")
	AttrResponseFinishReason = attribute.Key("gen_ai.response.finish_reasons")

	AttrCycleID = attribute.Key("gen_ai.event_loop.cycle_id")

	AttrToolName   = attribute.Key("gen_ai.tool.name")
	AttrToolCallID = attribute.Key("gen_ai.tool.call.id")
	AttrToolStatus = attribute.Key("gen_ai.tool.status")

	AttrPrompt     = attribute.Key("gen_ai.prompt")
	AttrCompletion = attribute.Key("gen_ai.completion")
)

// Span event names. The stable convention emits one aggregate prompt and
// one aggregate completion event per span; the experimental convention
// emits one event per message plus a gen_ai.choice event for the output.
const (
	eventContentPrompt     = "gen_ai.content.prompt"
	eventContentCompletion = "gen_ai.content.completion"

	eventUserMessage      = "gen_ai.user.message"
	eventAssistantMessage = "gen_ai.assistant.message"
	eventToolMessage      = "gen_ai.tool.message"
	eventChoice           = "gen_ai.choice"
)
