package telemetry

import (
	"encoding/json"
	"fmt"
)

// jsonSafe stringifies a span payload. Values that cannot be marshalled
// (cycles, channels) degrade to their fmt representation instead of
// dropping the event.
func jsonSafe(v any) string {
	if raw, ok := v.(json.RawMessage); ok {
		return string(raw)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
