package monitor

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"mavgo/pkg/framer"
)

// JSONLWriter appends one JSON record per decoded packet, adapted from the
// teacher's pkg/logger.JSONLWriter with framer.Packet's message name and
// decoded content in place of a raw RatPacket's numeric id and payload hex.
type JSONLWriter struct {
	enc *json.Encoder
}

type jsonRecord struct {
	TS      string         `json:"ts"`
	Message string         `json:"message"`
	ID      uint32         `json:"id"`
	Content map[string]any `json:"content"`
}

// NewJSONLWriter wraps w with a JSON encoder that does not escape HTML
// characters, matching the teacher's writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Consume drains in, appending one record per packet, until ctx is
// cancelled or the channel is closed.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan framer.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-in:
			if !ok {
				return
			}
			rec := jsonRecord{
				TS:      time.Now().UTC().Format(time.RFC3339Nano),
				Message: pkt.Message.Name,
				ID:      pkt.Message.ID,
				Content: pkt.Content,
			}
			_ = j.enc.Encode(rec)
		}
	}
}
