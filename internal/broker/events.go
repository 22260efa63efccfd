// Package broker multiplexes typed progress events from the agents and
// engines of one request to the single transport writer draining them.
package broker

import "time"

// EventType identifies the kind of event carried on the stream.
type EventType string

// Event types delivered over the SSE transport.
const (
	EventStatus             EventType = "status"
	EventFinalChunk         EventType = "final_chunk"
	EventDeviceChunk        EventType = "query_result_device_chunk"
	EventChainCategoryChunk EventType = "chain_category_chunk"
	EventTurnComplete       EventType = "turn_complete"
	EventError              EventType = "error"
)

// TokenUsage reports cumulative LLM token consumption for a turn.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage record.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ChunkInfo describes one segment of a chunked device list.
type ChunkInfo struct {
	ChunkNumber  int  `json:"chunk_number"`
	ChunkSize    int  `json:"chunk_size"`
	TotalDevices int  `json:"total_devices"`
	IsFinalChunk bool `json:"is_final_chunk"`
}

// Payload is the data envelope of an event. Only the fields relevant to the
// event type are populated.
type Payload struct {
	Agent     string `json:"agent,omitempty"`
	UID       string `json:"uid,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp"`

	// EventStatus, EventFinalChunk
	Content string `json:"content,omitempty"`

	// EventDeviceChunk, EventChainCategoryChunk
	Devices   []map[string]any `json:"devices,omitempty"`
	ChunkInfo *ChunkInfo       `json:"chunk_info,omitempty"`

	// EventTurnComplete
	TurnIndex  *int        `json:"turn_index,omitempty"`
	TokenUsage *TokenUsage `json:"token_usage,omitempty"`

	// EventError
	Error     string `json:"error,omitempty"`
	Traceback string `json:"traceback,omitempty"`
}

// Event is one typed record on the stream.
type Event struct {
	Type EventType `json:"type"`
	Data Payload   `json:"data"`
}

func stamp(p Payload) Payload {
	p.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	return p
}

// StatusEvent reports a pipeline phase transition.
func StatusEvent(agent, content string) Event {
	return Event{Type: EventStatus, Data: stamp(Payload{Agent: agent, Content: content})}
}

// FinalChunkEvent carries one token delta of the streamed answer.
func FinalChunkEvent(agent, content string) Event {
	return Event{Type: EventFinalChunk, Data: stamp(Payload{Agent: agent, Content: content})}
}

// TurnCompleteEvent closes out a turn with its index and token totals.
func TurnCompleteEvent(turnIndex int, usage TokenUsage) Event {
	return Event{Type: EventTurnComplete, Data: stamp(Payload{TurnIndex: &turnIndex, TokenUsage: &usage})}
}

// ErrorEvent surfaces a failure to the client.
func ErrorEvent(msg, traceback string) Event {
	return Event{Type: EventError, Data: stamp(Payload{Error: msg, Traceback: traceback})}
}

// deviceChunkSize caps how many devices ride in one chunk event.
const deviceChunkSize = 20

// DeviceChunkEvents segments a device list into chunk events of the given
// type, at most 20 devices per chunk, each carrying chunk bookkeeping.
func DeviceChunkEvents(typ EventType, agent string, devices []map[string]any) []Event {
	total := len(devices)
	if total == 0 {
		return nil
	}

	var events []Event
	for start := 0; start < total; start += deviceChunkSize {
		end := min(start+deviceChunkSize, total)
		seg := devices[start:end]
		events = append(events, Event{
			Type: typ,
			Data: stamp(Payload{
				Agent:   agent,
				Devices: seg,
				ChunkInfo: &ChunkInfo{
					ChunkNumber:  start/deviceChunkSize + 1,
					ChunkSize:    len(seg),
					TotalDevices: total,
					IsFinalChunk: end == total,
				},
			}),
		})
	}
	return events
}
