// Package identify builds the IDENTIFY handshake body and parses the
// feature-negotiation reply.
package identify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidIdentification = errors.New("identify: invalid identification")

// Identification is the IDENTIFY descriptor. Optional fields are pointers so
// that an explicitly set zero value is still sent.
type Identification struct {
	// ClientID disambiguates this client (something specific to the consumer).
	ClientID *string `json:"client_id,omitempty"`
	// Hostname where the client is deployed.
	Hostname *string `json:"hostname,omitempty"`
	// FeatureNegotiation asks nsqd to reply with a JSON feature document.
	FeatureNegotiation bool `json:"feature_negotiation"`

	UserAgent *string `json:"user_agent,omitempty"`
	// HeartbeatInterval is in milliseconds; -1 disables heartbeats.
	HeartbeatInterval *int64 `json:"heartbeat_interval,omitempty"`
	// OutputBufferSize is in bytes; -1 disables output buffering.
	OutputBufferSize *int64 `json:"output_buffer_size,omitempty"`
	// OutputBufferTimeout is in milliseconds; -1 disables the timeout.
	OutputBufferTimeout *int64 `json:"output_buffer_timeout,omitempty"`
	// SampleRate is a percentage in 0..99; 0 disables sampling.
	SampleRate *int32 `json:"sample_rate,omitempty"`
	// MsgTimeout is the server-side message timeout in milliseconds.
	MsgTimeout *int64 `json:"msg_timeout,omitempty"`
}

// New returns the default descriptor: feature negotiation on, nothing else set.
func New() Identification {
	return Identification{FeatureNegotiation: true}
}

func (i Identification) WithClientID(id string) Identification {
	i.ClientID = &id
	return i
}

func (i Identification) WithHostname(host string) Identification {
	i.Hostname = &host
	return i
}

func (i Identification) WithUserAgent(ua string) Identification {
	i.UserAgent = &ua
	return i
}

func (i Identification) WithFeatureNegotiation(enabled bool) Identification {
	i.FeatureNegotiation = enabled
	return i
}

// WithHeartbeatInterval sets the heartbeat interval; d < 0 disables heartbeats.
func (i Identification) WithHeartbeatInterval(d time.Duration) Identification {
	v := durationMS(d)
	i.HeartbeatInterval = &v
	return i
}

// WithOutputBuffer sets the nsqd-side output buffer size and flush timeout.
// Negative values disable the respective setting.
func (i Identification) WithOutputBuffer(size int64, timeout time.Duration) Identification {
	if size < 0 {
		size = -1
	}
	t := durationMS(timeout)
	i.OutputBufferSize = &size
	i.OutputBufferTimeout = &t
	return i
}

func (i Identification) WithSampleRate(percent int32) Identification {
	i.SampleRate = &percent
	return i
}

func (i Identification) WithMsgTimeout(d time.Duration) Identification {
	v := durationMS(d)
	i.MsgTimeout = &v
	return i
}

// Validate checks the ranges nsqd documents for each optional setting.
func (i Identification) Validate() error {
	if v := i.HeartbeatInterval; v != nil && *v != -1 && *v < 1000 {
		return fmt.Errorf("%w: heartbeat_interval %d below 1000ms", ErrInvalidIdentification, *v)
	}
	if v := i.OutputBufferSize; v != nil && *v != -1 && *v < 64 {
		return fmt.Errorf("%w: output_buffer_size %d below 64", ErrInvalidIdentification, *v)
	}
	if v := i.OutputBufferTimeout; v != nil && *v != -1 && *v < 1 {
		return fmt.Errorf("%w: output_buffer_timeout %d below 1ms", ErrInvalidIdentification, *v)
	}
	if v := i.SampleRate; v != nil && (*v < 0 || *v > 99) {
		return fmt.Errorf("%w: sample_rate %d outside 0..99", ErrInvalidIdentification, *v)
	}
	if v := i.MsgTimeout; v != nil && *v <= 0 {
		return fmt.Errorf("%w: msg_timeout %d must be positive", ErrInvalidIdentification, *v)
	}
	return nil
}

// Marshal validates i and returns the JSON body sent after "IDENTIFY\n".
func (i Identification) Marshal() ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(i)
}

func durationMS(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}
