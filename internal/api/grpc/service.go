// Package grpc serves the claim reports over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP
// API, so the service is registered by hand instead of from generated code.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "claimlens.v1.ReportService"

// Method names.
const (
	MethodTimeSeries      = "TimeSeries"
	MethodPercentOfTotal  = "PercentOfTotal"
	MethodProviderRanking = "ProviderRanking"
	MethodProducts        = "Products"
)

// ReportServiceServer is the server API of the report service.
type ReportServiceServer interface {
	TimeSeries(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PercentOfTotal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ProviderRanking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Products(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(ReportServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReportServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ReportServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ReportServiceDesc describes the report service for grpc.Server.
var ReportServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodTimeSeries, ReportServiceServer.TimeSeries),
		unaryHandler(MethodPercentOfTotal, ReportServiceServer.PercentOfTotal),
		unaryHandler(MethodProviderRanking, ReportServiceServer.ProviderRanking),
		unaryHandler(MethodProducts, ReportServiceServer.Products),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "claimlens/v1/report.proto",
}

// RegisterReportServiceServer registers srv on s.
func RegisterReportServiceServer(s grpc.ServiceRegistrar, srv ReportServiceServer) {
	s.RegisterService(&ReportServiceDesc, srv)
}

// ReportServiceClient calls the report service.
type ReportServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReportServiceClient creates a client over cc.
func NewReportServiceClient(cc grpc.ClientConnInterface) *ReportServiceClient {
	return &ReportServiceClient{cc: cc}
}

func (c *ReportServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// TimeSeries calls ReportService.TimeSeries.
func (c *ReportServiceClient) TimeSeries(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodTimeSeries, in, opts...)
}

// PercentOfTotal calls ReportService.PercentOfTotal.
func (c *ReportServiceClient) PercentOfTotal(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodPercentOfTotal, in, opts...)
}

// ProviderRanking calls ReportService.ProviderRanking.
func (c *ReportServiceClient) ProviderRanking(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodProviderRanking, in, opts...)
}

// Products calls ReportService.Products.
func (c *ReportServiceClient) Products(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, MethodProducts, in, opts...)
}
