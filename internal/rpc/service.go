// Package rpc serves the lip-sync pipeline over gRPC. Messages are
// google.protobuf.Struct values so no generated stubs are needed.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lexiqai/avatar-gateway/internal/asset"
	"github.com/lexiqai/avatar-gateway/internal/avatar"
	"github.com/lexiqai/avatar-gateway/internal/observability"
	"github.com/lexiqai/avatar-gateway/internal/pipeline"
)

const (
	ServiceName = "avatar.v1.LipSync"

	analyzeMethod      = "/" + ServiceName + "/Analyze"
	resolveAssetMethod = "/" + ServiceName + "/ResolveAsset"
)

// LipSyncServer is the server API for the LipSync service
type LipSyncServer interface {
	// Analyze takes {text, duration_ms?} and returns the full analysis
	Analyze(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// ResolveAsset takes {expression, eye, mouth} and returns {path, fallback, valid}
	ResolveAsset(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the LipSync service for grpc.Server registration
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LipSyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: analyzeHandler},
		{MethodName: "ResolveAsset", Handler: resolveAssetHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "avatar/v1/lipsync.proto",
}

// RegisterLipSyncServer registers srv on s
func RegisterLipSyncServer(s grpc.ServiceRegistrar, srv LipSyncServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func analyzeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LipSyncServer).Analyze(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: analyzeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LipSyncServer).Analyze(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func resolveAssetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LipSyncServer).ResolveAsset(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveAssetMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LipSyncServer).ResolveAsset(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Service implements LipSyncServer on top of the analysis pipeline
type Service struct {
	analyzer *pipeline.Analyzer
	resolver *asset.Resolver
}

// NewService creates the LipSync service
func NewService(analyzer *pipeline.Analyzer, resolver *asset.Resolver) *Service {
	if analyzer == nil {
		analyzer = pipeline.NewAnalyzer(nil)
	}
	if resolver == nil {
		resolver = asset.NewResolver(asset.DefaultBase)
	}
	return &Service{analyzer: analyzer, resolver: resolver}
}

// Analyze implements LipSyncServer
func (s *Service) Analyze(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	text := fields["text"].GetStringValue()

	var analysis pipeline.Analysis
	if d, ok := fields["duration_ms"]; ok {
		n, isNumber := d.GetKind().(*structpb.Value_NumberValue)
		if !isNumber || math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) {
			return nil, status.Error(codes.InvalidArgument, "duration_ms must be a number")
		}
		analysis = s.analyzer.AnalyzeFor(text, d.GetNumberValue())
	} else {
		analysis = s.analyzer.Analyze(text)
	}
	observability.RecordSequence("grpc", len(analysis.Sequence), analysis.Expression)

	return toStruct(analysis)
}

// ResolveAsset implements LipSyncServer
func (s *Service) ResolveAsset(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	expr, eye, mouth, err := asset.ParseState(
		fields["expression"].GetStringValue(),
		fields["eye"].GetStringValue(),
		fields["mouth"].GetStringValue(),
	)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	fallback, usedFallback := s.resolver.Resolve(avatar.Frame{Expression: expr, EyeState: eye, MouthShape: mouth})
	if usedFallback {
		observability.RecordAssetFallback()
	}

	return structpb.NewStruct(map[string]interface{}{
		"path":       s.resolver.Path(expr, eye, mouth),
		"fallback":   fallback,
		"lastResort": s.resolver.LastResort(),
		"valid":      asset.IsValid(expr, eye, mouth),
	})
}

// toStruct converts a JSON-tagged value into a Struct with the same field names
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode response: %v", err))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode response: %v", err))
	}
	return structpb.NewStruct(m)
}
