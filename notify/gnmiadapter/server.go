// Copyright 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gnmiadapter exposes package notify's bus over gNMI Subscribe
// (STREAM mode only), the transport spec.md §4.H names as an
// alternative front end to NETCONF's own <create-subscription>. It is
// a restricted gnmi.gNMIServer: Capabilities answers with this
// engine's supported encodings, Subscribe streams bus events as
// Notifications, and Get/Set are left unimplemented since spec.md
// scopes this adapter to notification delivery, not a second
// read/write datapath alongside NETCONF/RESTCONF. Grounded on
// ygot/gnmidiff's Notification/SubscribeResponse handling for the
// wire shapes and on onosproject-gnmi-netconf-adapter's Adapter for
// the gNMI-server-wrapping-a-different-protocol-engine shape.
package gnmiadapter

import (
	"context"
	"strings"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nmscore/netconfd/encoding"
	"github.com/nmscore/netconfd/nacm"
	"github.com/nmscore/netconfd/notify"
)

// Server adapts a notify.Bus to gNMI Subscribe. The zero Server is not
// usable; use New.
type Server struct {
	gnmipb.UnimplementedGNMIServer
	bus *notify.Bus
	acl *nacm.Evaluator // nil disables NACM notification filtering
}

// New returns a Server streaming events from bus. acl may be nil, in
// which case every subscriber sees every event the bus delivers to it
// (the caller is expected to have already applied whatever access
// control its transport layer requires).
func New(bus *notify.Bus, acl *nacm.Evaluator) *Server {
	return &Server{bus: bus, acl: acl}
}

// Capabilities answers the gNMI capability exchange.
func (s *Server) Capabilities(ctx context.Context, req *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error) {
	return &gnmipb.CapabilityResponse{
		SupportedEncodings: []gnmipb.Encoding{gnmipb.Encoding_JSON_IETF},
		GNMIVersion:        "0.10.0",
	}, nil
}

// subscriptionName derives the single notification name this adapter
// filters on from a gNMI SubscriptionList: the last path element of
// the first subscribed path, if any. This is a deliberate narrowing
// of gNMI's general path-set semantics (spec.md §4.H scopes this
// adapter to "subscribe to one notification stream, optionally
// restricted by name"); a caller wanting a full XPath selection
// expression should use notify.Bus.Subscribe directly or the NETCONF
// <create-subscription> front end instead.
func subscriptionName(list *gnmipb.SubscriptionList) string {
	if list == nil {
		return ""
	}
	for _, sub := range list.GetSubscription() {
		elems := sub.GetPath().GetElem()
		if len(elems) == 0 {
			continue
		}
		return elems[len(elems)-1].GetName()
	}
	return ""
}

// usernameFromMetadata reads the "username" gRPC metadata key set by
// whatever authentication interceptor the server is chained behind;
// absent metadata yields "", which nacm.Evaluator treats as an
// unrecognized user carrying no group memberships.
func usernameFromMetadata(md metadata.MD) string {
	vs := md.Get("username")
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// Subscribe implements STREAM-mode gNMI Subscribe by relaying bus
// events as Notifications. The first SubscribeRequest on the stream
// must carry a SubscriptionList in STREAM mode (ONCE and POLL are not
// supported by this adapter); every subsequent message from the
// client is ignored.
func (s *Server) Subscribe(stream gnmipb.GNMI_SubscribeServer) error {
	req, err := stream.Recv()
	if err != nil {
		return err
	}
	list := req.GetSubscribe()
	if list == nil {
		return status.Error(codes.InvalidArgument, "first SubscribeRequest must carry a SubscriptionList")
	}
	if list.GetMode() != gnmipb.SubscriptionList_STREAM {
		return status.Error(codes.Unimplemented, "gnmiadapter only supports STREAM mode subscriptions")
	}

	md, _ := metadata.FromIncomingContext(stream.Context())
	username := usernameFromMetadata(md)
	wantName := subscriptionName(list)

	sub := s.bus.Subscribe(notify.SubscribeOptions{})
	defer sub.Close()

	if err := stream.Send(&gnmipb.SubscribeResponse{
		Response: &gnmipb.SubscribeResponse_SyncResponse{SyncResponse: true},
	}); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if wantName != "" && !strings.EqualFold(ev.Name, wantName) {
				continue
			}
			if s.acl != nil && !s.acl.CheckNotification(username, ev.Module, ev.Name) {
				continue
			}
			n, err := encoding.ToNotification(ev.Tree, ev.Root, ev.Time.UnixNano())
			if err != nil {
				return status.Errorf(codes.Internal, "encode notification %s: %v", ev.Name, err)
			}
			if err := stream.Send(&gnmipb.SubscribeResponse{
				Response: &gnmipb.SubscribeResponse_Update{Update: n},
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}
