package protocol

import (
	"errors"
	"fmt"

	"github.com/danmuck/nsqwire/internal/protocol/frame"
)

var (
	ErrUnknownFrameType    = errors.New("protocol: unknown frame type")
	ErrInvalidMessageFrame = errors.New("protocol: invalid message frame")
)

// UnknownFrameTypeError reports a frame_type code outside response/error/message.
type UnknownFrameTypeError struct {
	Code frame.Type
}

func (e *UnknownFrameTypeError) Error() string {
	return fmt.Sprintf("protocol: unknown frame type: %d", uint32(e.Code))
}

func (e *UnknownFrameTypeError) Is(target error) bool {
	return target == ErrUnknownFrameType
}
