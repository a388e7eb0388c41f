package wsdetect

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/teslashibe/go-wayfind/pkg/detection"
)

// Reply is the msgpack message the service sends for every JPEG frame.
type Reply struct {
	Success    bool                  `msgpack:"success"`
	Detections []detection.Detection `msgpack:"detections"`
	Error      string                `msgpack:"error,omitempty"`
	LatencyMs  int64                 `msgpack:"latency_ms,omitempty"`
}

// EncodeReply serializes a reply.
func EncodeReply(r Reply) ([]byte, error) {
	return msgpack.Marshal(&r)
}

// DecodeReply parses a reply.
func DecodeReply(data []byte) (Reply, error) {
	var r Reply
	err := msgpack.Unmarshal(data, &r)
	return r, err
}
