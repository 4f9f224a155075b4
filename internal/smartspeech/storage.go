package smartspeech

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"smartspeech-client/internal/call"
)

// NewDownloadRequest builds the request of a Download stream.
func NewDownloadRequest(responseFileID string) (proto.Message, error) {
	if responseFileID == "" {
		return nil, fmt.Errorf("%w: response file id is required", ErrInvalidOptions)
	}
	m := newMessage(downloadRequestDesc)
	set(m, "response_file_id", protoreflect.ValueOfString(responseFileID))
	return m, nil
}

// Download is the read protocol of the storage Download stream.
type Download struct{}

// NewResponse allocates a DownloadResponse.
func (Download) NewResponse() any {
	return newMessage(downloadResponseDesc)
}

// Decode extracts one file chunk.
func (Download) Decode(resp any) call.Chunk {
	m, err := reflectAs(resp, downloadResponseDesc)
	if err != nil {
		return call.Chunk{}
	}
	return call.Chunk{Data: get(m, "file_chunk").Bytes()}
}

// ParseDownloadRequest returns the requested response file id.
func ParseDownloadRequest(msg proto.Message) (string, error) {
	m, err := reflectAs(msg, downloadRequestDesc)
	if err != nil {
		return "", err
	}
	return get(m, "response_file_id").String(), nil
}

// EncodeDownloadChunk builds a DownloadResponse.
func EncodeDownloadChunk(data []byte) proto.Message {
	m := newMessage(downloadResponseDesc)
	set(m, "file_chunk", protoreflect.ValueOfBytes(data))
	return m
}
