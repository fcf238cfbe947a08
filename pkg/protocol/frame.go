// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// MaxFrameSize bounds a single frame payload. Anything larger is treated as
// a corrupt length prefix rather than a legitimate message.
const MaxFrameSize = 100 << 20

// Frame is one length-delimited protocol message kept as raw bytes. The
// payload excludes the 4-byte length prefix. A Frame owns its payload until
// it is written out; writing re-emits the original bytes verbatim.
type Frame struct {
	Length  int32
	Payload []byte
}

// ReadFrame reads a single size-prefixed frame from r. It consumes either
// one complete frame or, on error, nothing usable: io.ReadFull blocks until
// the frame is complete, so a partial frame in transit never surfaces here.
func ReadFrame(r io.Reader) (*Frame, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read frame size: %w", err)
	}
	length := int32(binary.BigEndian.Uint32(lengthBuf[:]))
	if length < 0 {
		return nil, fmt.Errorf("invalid frame length %d", length)
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds limit %d", length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return &Frame{Length: length, Payload: payload}, nil
}

// WriteFrame writes payload prefixed with its length to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lengthBuf [4]byte
	if len(payload) > int(^uint32(0)>>1) {
		return fmt.Errorf("payload too large: %d", len(payload))
	}
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write frame size: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// DecodedRequest is a request frame whose header and body are structured.
// The encoded payload is computed once and cached; Invalidate must follow
// every header or body mutation so the cache cannot go stale.
type DecodedRequest struct {
	Header *RequestHeader
	Body   kmsg.Request

	enc []byte
}

// Payload encodes header and body into one frame payload, caching the
// result until Invalidate is called.
func (d *DecodedRequest) Payload() ([]byte, error) {
	if d.enc != nil {
		return d.enc, nil
	}
	flexible := d.Body.IsFlexible()
	w := newByteWriter(64)
	appendRequestHeader(w, d.Header, flexible)
	d.enc = d.Body.AppendTo(w.Bytes())
	return d.enc, nil
}

// EncodedSize reports the payload size including the 4-byte length prefix.
func (d *DecodedRequest) EncodedSize() (int, error) {
	payload, err := d.Payload()
	if err != nil {
		return 0, err
	}
	return 4 + len(payload), nil
}

// Invalidate discards the cached encoding after a mutation.
func (d *DecodedRequest) Invalidate() {
	d.enc = nil
}

// DecodedResponse is a response frame whose body is structured. Responses
// do not carry api key or version on the wire; both come from the
// correlation record of the originating request.
type DecodedResponse struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	Body          kmsg.Response

	enc []byte
}

// Payload encodes the response header and body, caching the result until
// Invalidate is called.
func (d *DecodedResponse) Payload() ([]byte, error) {
	if d.enc != nil {
		return d.enc, nil
	}
	w := newByteWriter(64)
	appendResponseHeader(w, d.CorrelationID, flexibleResponseHeader(d.APIKey, d.Body.IsFlexible()))
	d.enc = d.Body.AppendTo(w.Bytes())
	return d.enc, nil
}

// EncodedSize reports the payload size including the 4-byte length prefix.
func (d *DecodedResponse) EncodedSize() (int, error) {
	payload, err := d.Payload()
	if err != nil {
		return 0, err
	}
	return 4 + len(payload), nil
}

// Invalidate discards the cached encoding after a mutation.
func (d *DecodedResponse) Invalidate() {
	d.enc = nil
}
