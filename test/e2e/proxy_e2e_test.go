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

//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/novatechflow/kafgate/pkg/discovery"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/filter/builtin"
	"github.com/novatechflow/kafgate/pkg/proxy"
)

// TestProxyProduceConsume runs the proxy in-process against a live broker
// named by KAFGATE_E2E_UPSTREAM and drives real client traffic through it.
func TestProxyProduceConsume(t *testing.T) {
	upstream := strings.TrimSpace(os.Getenv("KAFGATE_E2E_UPSTREAM"))
	if upstream == "" {
		t.Skip("set KAFGATE_E2E_UPSTREAM to a live broker address to run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	proxyPort := pickFreePort(t)
	proxyAddr := "127.0.0.1:" + proxyPort
	port, err := strconv.ParseInt(proxyPort, 10, 32)
	if err != nil {
		t.Fatalf("parse proxy port: %v", err)
	}

	registry, err := discovery.NewStatic([]string{upstream})
	if err != nil {
		t.Fatalf("static registry: %v", err)
	}
	server := &proxy.Server{
		Addr:     proxyAddr,
		Registry: registry,
		NewChain: func() (*filter.Chain, error) {
			filters, err := builtin.Build([]string{"clamp", "rewrite", "audit"}, builtin.Config{
				AdvertisedHost: "127.0.0.1",
				AdvertisedPort: int32(port),
			})
			if err != nil {
				return nil, err
			}
			return filter.NewChain(filters...)
		},
	}
	serverCtx, serverCancel := context.WithCancel(ctx)
	serverErr := make(chan error, 1)
	go func() { serverErr <- server.ListenAndServe(serverCtx) }()
	t.Cleanup(func() {
		serverCancel()
		if err := <-serverErr; err != nil {
			t.Errorf("proxy server: %v", err)
		}
		server.Wait()
	})
	waitForListener(t, proxyAddr)

	topic := fmt.Sprintf("kafgate-e2e-%08x", rand.New(rand.NewSource(time.Now().UnixNano())).Uint32())

	client, err := kgo.NewClient(
		kgo.SeedBrokers(proxyAddr),
		kgo.ConsumeTopics(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		t.Fatalf("kgo client: %v", err)
	}
	defer client.Close()

	// Every broker the client discovers must resolve to the proxy: the
	// rewrite filter replaces advertised addresses in Metadata responses.
	adm := kadm.NewClient(client)
	brokers, err := adm.ListBrokers(ctx)
	if err != nil {
		t.Fatalf("list brokers through proxy: %v", err)
	}
	if len(brokers) == 0 {
		t.Fatal("metadata advertised no brokers")
	}
	for _, b := range brokers {
		addr := net.JoinHostPort(b.Host, strconv.Itoa(int(b.Port)))
		if addr != proxyAddr {
			t.Fatalf("broker %d advertised %s, want %s (rewrite filter)", b.NodeID, addr, proxyAddr)
		}
	}

	const messageCount = 10
	produced := make(map[string]bool, messageCount)
	for i := 0; i < messageCount; i++ {
		value := fmt.Sprintf("msg-%d", i)
		produced[value] = false
		rec := &kgo.Record{Topic: topic, Value: []byte(value)}
		if err := client.ProduceSync(ctx, rec).FirstErr(); err != nil {
			t.Fatalf("produce %q: %v", value, err)
		}
	}

	consumeCtx, consumeCancel := context.WithTimeout(ctx, 30*time.Second)
	defer consumeCancel()
	seen := 0
	for seen < messageCount {
		fetches := client.PollFetches(consumeCtx)
		if err := fetches.Err(); err != nil {
			t.Fatalf("poll fetches after %d/%d messages: %v", seen, messageCount, err)
		}
		fetches.EachRecord(func(rec *kgo.Record) {
			value := string(rec.Value)
			done, ok := produced[value]
			if !ok {
				t.Fatalf("consumed unexpected record %q", value)
			}
			if !done {
				produced[value] = true
				seen++
			}
		})
	}
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("proxy did not start listening on %s", addr)
}
