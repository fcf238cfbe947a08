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

// Package capture persists traffic summaries to object storage. The proxy
// stays on the hot path; captures are batched and uploaded out of band.
package capture

import (
	"context"
	"time"
)

// ObjectStore is the abstraction the sink writes capture objects through.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte) error
	EnsureBucket(ctx context.Context) error
}

// Record summarizes one proxied frame. Records are serialized one JSON
// object per line into capture objects.
type Record struct {
	Time          time.Time `json:"time"`
	Direction     string    `json:"direction"`
	API           string    `json:"api"`
	APIVersion    int16     `json:"api_version"`
	CorrelationID int32     `json:"correlation_id"`
	ClientID      string    `json:"client_id,omitempty"`
	SizeBytes     int       `json:"size_bytes"`
}

// S3Config describes connection details for AWS S3 or compatible endpoints.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	KMSKeyARN       string
}
