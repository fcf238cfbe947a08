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

package proxy

import (
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kafgate/pkg/protocol"
)

// ErrorResponse builds a response for req carrying the given error code,
// mirroring the request's topology so every topic, partition, group, or
// coordinator key the client asked about reports the code. The response
// version matches the request's. APIs without a mirrorable error shape
// return an error; callers close the connection instead.
func ErrorResponse(req kmsg.Request, code int16) (kmsg.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	resp := req.ResponseKind()

	switch r := req.(type) {
	case *kmsg.ProduceRequest:
		// Acks=0 produce requests get no response on the wire; writing
		// one would desynchronize the client.
		if r.Acks == 0 {
			return nil, errors.New("produce with acks=0 has no response")
		}
		out := resp.(*kmsg.ProduceResponse)
		for _, topic := range r.Topics {
			rt := kmsg.NewProduceResponseTopic()
			rt.Topic = topic.Topic
			for _, part := range topic.Partitions {
				rp := kmsg.NewProduceResponseTopicPartition()
				rp.Partition = part.Partition
				rp.ErrorCode = code
				rp.BaseOffset = -1
				rt.Partitions = append(rt.Partitions, rp)
			}
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.FetchRequest:
		out := resp.(*kmsg.FetchResponse)
		out.ErrorCode = code
		out.SessionID = r.SessionID
		for _, topic := range r.Topics {
			rt := kmsg.NewFetchResponseTopic()
			rt.Topic = topic.Topic
			rt.TopicID = topic.TopicID
			for _, part := range topic.Partitions {
				rp := kmsg.NewFetchResponseTopicPartition()
				rp.Partition = part.Partition
				rp.ErrorCode = code
				rt.Partitions = append(rt.Partitions, rp)
			}
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.MetadataRequest:
		out := resp.(*kmsg.MetadataResponse)
		out.ControllerID = -1
		for _, topic := range r.Topics {
			rt := kmsg.NewMetadataResponseTopic()
			rt.ErrorCode = code
			rt.Topic = topic.Topic
			rt.TopicID = topic.TopicID
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.ListOffsetsRequest:
		out := resp.(*kmsg.ListOffsetsResponse)
		for _, topic := range r.Topics {
			rt := kmsg.NewListOffsetsResponseTopic()
			rt.Topic = topic.Topic
			for _, part := range topic.Partitions {
				rp := kmsg.NewListOffsetsResponseTopicPartition()
				rp.Partition = part.Partition
				rp.ErrorCode = code
				rt.Partitions = append(rt.Partitions, rp)
			}
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.OffsetCommitRequest:
		out := resp.(*kmsg.OffsetCommitResponse)
		for _, topic := range r.Topics {
			rt := kmsg.NewOffsetCommitResponseTopic()
			rt.Topic = topic.Topic
			for _, part := range topic.Partitions {
				rp := kmsg.NewOffsetCommitResponseTopicPartition()
				rp.Partition = part.Partition
				rp.ErrorCode = code
				rt.Partitions = append(rt.Partitions, rp)
			}
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.OffsetFetchRequest:
		out := resp.(*kmsg.OffsetFetchResponse)
		out.ErrorCode = code
		for _, topic := range r.Topics {
			rt := kmsg.NewOffsetFetchResponseTopic()
			rt.Topic = topic.Topic
			for _, part := range topic.Partitions {
				rp := kmsg.NewOffsetFetchResponseTopicPartition()
				rp.Partition = part
				rp.Offset = -1
				rp.ErrorCode = code
				rt.Partitions = append(rt.Partitions, rp)
			}
			out.Topics = append(out.Topics, rt)
		}
		for _, group := range r.Groups {
			rg := kmsg.NewOffsetFetchResponseGroup()
			rg.Group = group.Group
			rg.ErrorCode = code
			out.Groups = append(out.Groups, rg)
		}

	case *kmsg.FindCoordinatorRequest:
		out := resp.(*kmsg.FindCoordinatorResponse)
		out.ErrorCode = code
		out.NodeID = -1
		for _, key := range r.CoordinatorKeys {
			rc := kmsg.NewFindCoordinatorResponseCoordinator()
			rc.Key = key
			rc.NodeID = -1
			rc.ErrorCode = code
			out.Coordinators = append(out.Coordinators, rc)
		}

	case *kmsg.JoinGroupRequest:
		out := resp.(*kmsg.JoinGroupResponse)
		out.ErrorCode = code
		out.MemberID = r.MemberID

	case *kmsg.HeartbeatRequest:
		resp.(*kmsg.HeartbeatResponse).ErrorCode = code

	case *kmsg.LeaveGroupRequest:
		out := resp.(*kmsg.LeaveGroupResponse)
		out.ErrorCode = code
		for _, member := range r.Members {
			rm := kmsg.NewLeaveGroupResponseMember()
			rm.MemberID = member.MemberID
			rm.InstanceID = member.InstanceID
			rm.ErrorCode = code
			out.Members = append(out.Members, rm)
		}

	case *kmsg.SyncGroupRequest:
		resp.(*kmsg.SyncGroupResponse).ErrorCode = code

	case *kmsg.ApiVersionsRequest:
		resp.(*kmsg.ApiVersionsResponse).ErrorCode = code

	case *kmsg.CreateTopicsRequest:
		out := resp.(*kmsg.CreateTopicsResponse)
		for _, topic := range r.Topics {
			rt := kmsg.NewCreateTopicsResponseTopic()
			rt.Topic = topic.Topic
			rt.ErrorCode = code
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.DeleteTopicsRequest:
		out := resp.(*kmsg.DeleteTopicsResponse)
		for _, name := range r.TopicNames {
			rt := kmsg.NewDeleteTopicsResponseTopic()
			topic := name
			rt.Topic = &topic
			rt.ErrorCode = code
			out.Topics = append(out.Topics, rt)
		}
		for _, topic := range r.Topics {
			rt := kmsg.NewDeleteTopicsResponseTopic()
			rt.Topic = topic.Topic
			rt.TopicID = topic.TopicID
			rt.ErrorCode = code
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.CreatePartitionsRequest:
		out := resp.(*kmsg.CreatePartitionsResponse)
		for _, topic := range r.Topics {
			rt := kmsg.NewCreatePartitionsResponseTopic()
			rt.Topic = topic.Topic
			rt.ErrorCode = code
			out.Topics = append(out.Topics, rt)
		}

	case *kmsg.DeleteGroupsRequest:
		out := resp.(*kmsg.DeleteGroupsResponse)
		for _, group := range r.Groups {
			rg := kmsg.NewDeleteGroupsResponseGroup()
			rg.Group = group
			rg.ErrorCode = code
			out.Groups = append(out.Groups, rg)
		}

	default:
		return nil, fmt.Errorf("no synthetic response for %s", protocol.APIKeyName(req.Key()))
	}

	return resp, nil
}
