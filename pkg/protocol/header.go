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
)

// RequestHeader carries the fields every request frame starts with. Flexible
// versions append tagged fields after ClientID (request header v2); the
// fixed fields are identical across header versions.
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      *string
}

// PeekRequestMeta reads the fixed leading fields of a request payload
// without a full header parse. It works for every header version, so the
// proxy can route and correlate opaque frames it never decodes.
func PeekRequestMeta(payload []byte) (apiKey, apiVersion int16, correlationID int32, err error) {
	if len(payload) < 8 {
		return 0, 0, 0, fmt.Errorf("request header truncated: %d bytes", len(payload))
	}
	apiKey = int16(binary.BigEndian.Uint16(payload[0:2]))
	apiVersion = int16(binary.BigEndian.Uint16(payload[2:4]))
	correlationID = int32(binary.BigEndian.Uint32(payload[4:8]))
	return apiKey, apiVersion, correlationID, nil
}

// PeekCorrelationID reads the correlation id leading a response payload.
// It precedes any tagged fields in every response header version.
func PeekCorrelationID(payload []byte) (int32, error) {
	if len(payload) < 4 {
		return 0, fmt.Errorf("response header truncated: %d bytes", len(payload))
	}
	return int32(binary.BigEndian.Uint32(payload[0:4])), nil
}

// ParseRequestHeader decodes a full request header and returns it along
// with the offset where the body begins. The header version is derived
// from the api key and version via the schema gateway; an unknown pair is
// a protocol violation.
func ParseRequestHeader(payload []byte) (*RequestHeader, int, error) {
	apiKey, apiVersion, _, err := PeekRequestMeta(payload)
	if err != nil {
		return nil, 0, err
	}
	flexible, err := flexibleRequest(apiKey, apiVersion)
	if err != nil {
		return nil, 0, err
	}
	return parseRequestHeader(payload, flexible)
}

func parseRequestHeader(payload []byte, flexible bool) (*RequestHeader, int, error) {
	reader := newByteReader(payload)
	apiKey, err := reader.Int16()
	if err != nil {
		return nil, 0, fmt.Errorf("read api key: %w", err)
	}
	version, err := reader.Int16()
	if err != nil {
		return nil, 0, fmt.Errorf("read api version: %w", err)
	}
	correlationID, err := reader.Int32()
	if err != nil {
		return nil, 0, fmt.Errorf("read correlation id: %w", err)
	}
	clientID, err := reader.NullableString()
	if err != nil {
		return nil, 0, fmt.Errorf("read client id: %w", err)
	}
	if flexible {
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, 0, fmt.Errorf("skip header tags: %w", err)
		}
	}
	header := &RequestHeader{
		APIKey:        apiKey,
		APIVersion:    version,
		CorrelationID: correlationID,
		ClientID:      clientID,
	}
	return header, reader.pos, nil
}

// Tagged fields the proxy did not decode are dropped on re-encode; no
// client in the supported range sends request header tags.
func appendRequestHeader(w *byteWriter, h *RequestHeader, flexible bool) {
	w.Int16(h.APIKey)
	w.Int16(h.APIVersion)
	w.Int32(h.CorrelationID)
	w.NullableString(h.ClientID)
	if flexible {
		w.WriteTaggedFields(0)
	}
}

func parseResponseHeader(payload []byte, flexibleHeader bool) (int32, int, error) {
	reader := newByteReader(payload)
	correlationID, err := reader.Int32()
	if err != nil {
		return 0, 0, fmt.Errorf("read correlation id: %w", err)
	}
	if flexibleHeader {
		if err := reader.SkipTaggedFields(); err != nil {
			return 0, 0, fmt.Errorf("skip header tags: %w", err)
		}
	}
	return correlationID, reader.pos, nil
}

func appendResponseHeader(w *byteWriter, correlationID int32, flexibleHeader bool) {
	w.Int32(correlationID)
	if flexibleHeader {
		w.WriteTaggedFields(0)
	}
}

// flexibleResponseHeader decides whether a response carries header v1
// (tagged fields). The ApiVersions response always stays on header v0:
// clients parse it before they know which versions are flexible.
func flexibleResponseHeader(apiKey int16, flexibleBody bool) bool {
	if apiKey == APIKeyApiVersions {
		return false
	}
	return flexibleBody
}
