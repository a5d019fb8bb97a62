package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	clerrors "github.com/claimlens/claimlens/internal/errors"
	"github.com/claimlens/claimlens/internal/query/filter"
	"github.com/claimlens/claimlens/internal/query/ranking"
	"github.com/claimlens/claimlens/internal/query/share"
	"github.com/claimlens/claimlens/internal/query/timeseries"
	"github.com/claimlens/claimlens/internal/report"
)

// ReportServer implements ReportServiceServer on a report.Service.
type ReportServer struct {
	service  *report.Service
	defaults filter.Params
}

// NewReportServer creates a gRPC report server. defaults fill parameters a
// request leaves unset.
func NewReportServer(svc *report.Service, defaults filter.Params) *ReportServer {
	return &ReportServer{service: svc, defaults: defaults}
}

// TimeSeries returns {"product", "interval", "qty", "points", "request_id"}.
func (s *ReportServer) TimeSeries(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	p, err := s.params(req)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	points, err := s.service.TimeSeries(ctx, p)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	if points == nil {
		points = []timeseries.Point{}
	}
	return toStruct(map[string]interface{}{
		"product":    p.Product,
		"interval":   p.Interval,
		"qty":        p.Quantity,
		"points":     points,
		"request_id": requestID,
	})
}

// PercentOfTotal returns {"rows", "colors", "request_id"}.
func (s *ReportServer) PercentOfTotal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	p, err := s.params(req)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	rows, err := s.service.PercentOfTotal(ctx, p)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	if rows == nil {
		rows = []share.Row{}
	}
	return toStruct(map[string]interface{}{
		"rows":       rows,
		"colors":     share.ColorMap,
		"request_id": requestID,
	})
}

// ProviderRanking returns {"rank_by", "rank_label", "rows", "colors",
// "request_id"}.
func (s *ReportServer) ProviderRanking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	p, err := s.params(req)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	rows, err := s.service.ProviderRanking(ctx, p)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	if rows == nil {
		rows = []ranking.Row{}
	}
	return toStruct(map[string]interface{}{
		"rank_by":    p.RankBy,
		"rank_label": p.RankBy.Label(),
		"rows":       rows,
		"colors":     share.ColorMap,
		"request_id": requestID,
	})
}

// Products returns {"items", "request_id"}. The request is ignored.
func (s *ReportServer) Products(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	requestID := extractRequestID(ctx)
	products, err := s.service.Products(ctx)
	if err != nil {
		return nil, toStatus(err, requestID)
	}
	return toStruct(map[string]interface{}{
		"items":      products,
		"request_id": requestID,
	})
}

// params decodes a request struct through the JSON parameter encoding.
func (s *ReportServer) params(req *structpb.Struct) (filter.Params, error) {
	p := s.defaults
	if req != nil && len(req.GetFields()) > 0 {
		raw, err := json.Marshal(req.AsMap())
		if err != nil {
			return p, clerrors.NewValidationError(clerrors.CodeInvalidParameter, "invalid request")
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			if clerrors.GetCategory(err) != "" {
				return p, err
			}
			return p, clerrors.NewValidationError(clerrors.CodeInvalidParameter, "invalid request").
				WithDetails(map[string]interface{}{"reason": err.Error()})
		}
	}
	return p, p.Validate()
}

// toStruct converts v to a Struct via its JSON encoding.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// toStatus maps an error to a gRPC status.
func toStatus(err error, requestID string) error {
	switch {
	case clerrors.IsValidation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	log.Printf("grpc: request %s failed: %v", requestID, err)
	return status.Error(codes.Internal, err.Error())
}

// extractRequestID reads x-request-id from the incoming metadata or
// generates one.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}
