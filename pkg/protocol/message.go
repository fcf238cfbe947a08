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
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// ErrUnknownAPI marks an api key or version the schema gateway has no
// layout for. Hitting it on a decode path is a protocol violation and
// fatal for the connection.
var ErrUnknownAPI = errors.New("unknown api key or version")

// requestForKey returns a fresh request for the key at the given version,
// validating that the gateway knows the pair.
func requestForKey(apiKey, apiVersion int16) (kmsg.Request, error) {
	req := kmsg.RequestForKey(apiKey)
	if req == nil {
		return nil, fmt.Errorf("%w: key %d", ErrUnknownAPI, apiKey)
	}
	if apiVersion < 0 || apiVersion > req.MaxVersion() {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnknownAPI, APIKeyName(apiKey), apiVersion)
	}
	req.SetVersion(apiVersion)
	return req, nil
}

func responseForKey(apiKey, apiVersion int16) (kmsg.Response, error) {
	resp := kmsg.ResponseForKey(apiKey)
	if resp == nil {
		return nil, fmt.Errorf("%w: key %d", ErrUnknownAPI, apiKey)
	}
	if apiVersion < 0 || apiVersion > resp.MaxVersion() {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnknownAPI, APIKeyName(apiKey), apiVersion)
	}
	resp.SetVersion(apiVersion)
	return resp, nil
}

// flexibleRequest reports whether the request header carries tagged fields
// (header v2) for the given api key and version.
func flexibleRequest(apiKey, apiVersion int16) (bool, error) {
	req, err := requestForKey(apiKey, apiVersion)
	if err != nil {
		return false, err
	}
	return req.IsFlexible(), nil
}

// DecodeRequest decodes a request body for the given api key and version.
func DecodeRequest(apiKey, apiVersion int16, body []byte) (kmsg.Request, error) {
	req, err := requestForKey(apiKey, apiVersion)
	if err != nil {
		return nil, err
	}
	if err := req.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("decode %s v%d request: %w", APIKeyName(apiKey), apiVersion, err)
	}
	return req, nil
}

// DecodeResponse decodes a response body. Key and version come from the
// correlation record of the originating request; response bytes do not
// carry them.
func DecodeResponse(apiKey, apiVersion int16, body []byte) (kmsg.Response, error) {
	resp, err := responseForKey(apiKey, apiVersion)
	if err != nil {
		return nil, err
	}
	if err := resp.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("decode %s v%d response: %w", APIKeyName(apiKey), apiVersion, err)
	}
	return resp, nil
}

// DecodeRequestFrame decodes header and body from one request payload.
func DecodeRequestFrame(payload []byte) (*DecodedRequest, error) {
	apiKey, apiVersion, _, err := PeekRequestMeta(payload)
	if err != nil {
		return nil, err
	}
	req, err := requestForKey(apiKey, apiVersion)
	if err != nil {
		return nil, err
	}
	header, bodyStart, err := parseRequestHeader(payload, req.IsFlexible())
	if err != nil {
		return nil, err
	}
	if err := req.ReadFrom(payload[bodyStart:]); err != nil {
		return nil, fmt.Errorf("decode %s v%d request: %w", APIKeyName(apiKey), apiVersion, err)
	}
	return &DecodedRequest{Header: header, Body: req}, nil
}

// DecodeResponseFrame decodes one response payload using the recorded api
// key and version of its request.
func DecodeResponseFrame(payload []byte, apiKey, apiVersion int16) (*DecodedResponse, error) {
	resp, err := responseForKey(apiKey, apiVersion)
	if err != nil {
		return nil, err
	}
	correlationID, bodyStart, err := parseResponseHeader(payload, flexibleResponseHeader(apiKey, resp.IsFlexible()))
	if err != nil {
		return nil, err
	}
	if err := resp.ReadFrom(payload[bodyStart:]); err != nil {
		return nil, fmt.Errorf("decode %s v%d response: %w", APIKeyName(apiKey), apiVersion, err)
	}
	return &DecodedResponse{
		APIKey:        apiKey,
		APIVersion:    apiVersion,
		CorrelationID: correlationID,
		Body:          resp,
	}, nil
}

// SupportedVersions reports the version range the gateway can decode for an
// api key. The floor is 0 for every known key.
func SupportedVersions(apiKey int16) (min, max int16, ok bool) {
	req := kmsg.RequestForKey(apiKey)
	if req == nil {
		return 0, 0, false
	}
	return 0, req.MaxVersion(), true
}

// Decodable reports whether the gateway has a schema for the key/version
// pair. Generic filters bound their opt-in with it: claiming a pair the
// decode path cannot parse turns that traffic into a connection error.
func Decodable(apiKey, apiVersion int16) bool {
	_, max, ok := SupportedVersions(apiKey)
	return ok && apiVersion >= 0 && apiVersion <= max
}
