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

package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultBrokerPrefix = "/kafgate/upstreams"

// EtcdConfig defines how we connect to etcd for broker registrations.
type EtcdConfig struct {
	Endpoints   []string
	Username    string
	Password    string
	Prefix      string
	DialTimeout time.Duration
}

// brokerRecord is the JSON value brokers publish under <prefix>/<id>.
type brokerRecord struct {
	Host string `json:"host"`
	Port int32  `json:"port"`
}

// EtcdRegistry round-robins over broker addresses registered in etcd and
// follows registration changes through a prefix watch.
type EtcdRegistry struct {
	log    *slog.Logger
	client *clientv3.Client
	prefix string
	cancel context.CancelFunc

	mu    sync.RWMutex
	addrs []string
	next  uint32
}

// NewEtcdRegistry connects to etcd, loads the current registrations, and
// starts the watcher. The initial load must succeed; an empty prefix is
// fine, connecting clients are refused until a broker registers.
func NewEtcdRegistry(ctx context.Context, log *slog.Logger, cfg EtcdConfig) (*EtcdRegistry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultBrokerPrefix
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd: %w", err)
	}
	r := &EtcdRegistry{
		log:    log,
		client: cli,
		prefix: cfg.Prefix,
	}
	if err := r.refresh(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("load broker registrations: %w", err)
	}
	r.startWatcher()
	return r, nil
}

func (r *EtcdRegistry) Pick(ctx context.Context) (string, error) {
	r.mu.RLock()
	addrs := r.addrs
	r.mu.RUnlock()
	if len(addrs) == 0 {
		return "", ErrNoUpstreams
	}
	n := atomic.AddUint32(&r.next, 1)
	return addrs[(n-1)%uint32(len(addrs))], nil
}

func (r *EtcdRegistry) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.client.Close()
}

func (r *EtcdRegistry) startWatcher() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	go r.watch(ctx)
}

func (r *EtcdRegistry) watch(ctx context.Context) {
	watchChan := r.client.Watch(ctx, r.prefix, clientv3.WithPrefix())
	for resp := range watchChan {
		if resp.Err() != nil {
			continue
		}
		if err := r.refresh(ctx); err != nil {
			r.log.Warn("refresh broker registrations", "error", err)
		}
	}
}

// refresh replaces the address list with the current etcd contents.
// Malformed registrations are skipped, not fatal; one bad broker must not
// take discovery down for the rest.
func (r *EtcdRegistry) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := r.client.Get(ctx, r.prefix, clientv3.WithPrefix())
	if err != nil {
		return err
	}
	addrs := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var rec brokerRecord
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			r.log.Warn("skip malformed broker registration", "key", string(kv.Key), "error", err)
			continue
		}
		if rec.Host == "" || rec.Port <= 0 {
			r.log.Warn("skip incomplete broker registration", "key", string(kv.Key))
			continue
		}
		addrs = append(addrs, net.JoinHostPort(rec.Host, strconv.Itoa(int(rec.Port))))
	}
	sort.Strings(addrs)
	r.mu.Lock()
	r.addrs = addrs
	r.mu.Unlock()
	return nil
}
