package identify

import (
	"encoding/json"
	"fmt"
	"time"
)

// ServerFeatures is nsqd's reply to IDENTIFY when feature negotiation is on.
type ServerFeatures struct {
	MaxRdyCount         int64  `json:"max_rdy_count"`
	Version             string `json:"version"`
	MaxMsgTimeout       int64  `json:"max_msg_timeout"`
	MsgTimeout          int64  `json:"msg_timeout"`
	TLSv1               bool   `json:"tls_v1"`
	Deflate             bool   `json:"deflate"`
	DeflateLevel        int    `json:"deflate_level"`
	MaxDeflateLevel     int    `json:"max_deflate_level"`
	Snappy              bool   `json:"snappy"`
	SampleRate          int32  `json:"sample_rate"`
	AuthRequired        bool   `json:"auth_required"`
	OutputBufferSize    int64  `json:"output_buffer_size"`
	OutputBufferTimeout int64  `json:"output_buffer_timeout"`
}

func ParseServerFeatures(data []byte) (ServerFeatures, error) {
	var f ServerFeatures
	if err := json.Unmarshal(data, &f); err != nil {
		return ServerFeatures{}, fmt.Errorf("identify: parse server features: %w", err)
	}
	return f, nil
}

// MessageTimeout returns the negotiated per-message timeout.
func (f ServerFeatures) MessageTimeout() time.Duration {
	return time.Duration(f.MsgTimeout) * time.Millisecond
}
