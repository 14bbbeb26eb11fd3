package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/shipstore/internal/core/domain"
	"github.com/rl1809/shipstore/internal/core/service"
	"github.com/rl1809/shipstore/internal/core/session"
)

// CodecName is the content subtype clients must select, e.g. with
// grpc.CallContentSubtype(CodecName).
const CodecName = "json"

const (
	ledgerServiceName = "inventory.LedgerService"

	methodRecordTransaction = "/" + ledgerServiceName + "/RecordTransaction"
	methodLookupBarcode     = "/" + ledgerServiceName + "/LookupBarcode"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type RecordTransactionRequest struct {
	RequestID string `json:"request_id"`
	PartID    string `json:"part_id"`
	Type      string `json:"transaction_type"`
	Quantity  string `json:"quantity"`
	Reason    string `json:"reason"`
	Remarks   string `json:"remarks"`
}

// RecordTransactionResponse reports business rejections in Success and
// Message; transport and storage failures come back as gRPC status errors.
type RecordTransactionResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id,omitempty"`
	Balance       string `json:"balance,omitempty"`
}

type LookupBarcodeRequest struct {
	Barcode string `json:"barcode"`
}

type LookupBarcodeResponse struct {
	Found      bool   `json:"found"`
	PartID     string `json:"part_id,omitempty"`
	PartNumber string `json:"part_number,omitempty"`
	Name       string `json:"name,omitempty"`
	Barcode    string `json:"barcode,omitempty"`
	Quantity   string `json:"quantity,omitempty"`
	Status     string `json:"status,omitempty"`
}

// LedgerServer is implemented by GRPCHandler.
type LedgerServer interface {
	RecordTransaction(context.Context, *RecordTransactionRequest) (*RecordTransactionResponse, error)
	LookupBarcode(context.Context, *LookupBarcodeRequest) (*LookupBarcodeResponse, error)
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ledgerServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordTransaction", Handler: recordTransactionHandler},
		{MethodName: "LookupBarcode", Handler: lookupBarcodeHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

func recordTransactionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RecordTransactionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).RecordTransaction(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRecordTransaction}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).RecordTransaction(ctx, req.(*RecordTransactionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func lookupBarcodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LookupBarcodeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).LookupBarcode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLookupBarcode}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LedgerServer).LookupBarcode(ctx, req.(*LookupBarcodeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type GRPCHandler struct {
	ledger *service.LedgerService
	parts  *service.PartService
}

func NewGRPCHandler(ledger *service.LedgerService, parts *service.PartService) *GRPCHandler {
	return &GRPCHandler{ledger: ledger, parts: parts}
}

func (h *GRPCHandler) RecordTransaction(ctx context.Context, req *RecordTransactionRequest) (*RecordTransactionResponse, error) {
	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return &RecordTransactionResponse{Success: false, Message: "quantity must be a number"}, nil
	}

	mv, err := h.ledger.RecordTransaction(ctx, service.TransactionRequest{
		RequestID: req.RequestID,
		PartID:    req.PartID,
		Type:      domain.TransactionType(req.Type),
		Quantity:  qty,
		Reason:    req.Reason,
		Remarks:   req.Remarks,
	})
	if err != nil {
		if st := grpcStatus(err); st != nil {
			return nil, st.Err()
		}
		return &RecordTransactionResponse{Success: false, Message: err.Error()}, nil
	}

	return &RecordTransactionResponse{
		Success:       true,
		Message:       "transaction recorded",
		TransactionID: mv.Transaction.ID,
		Balance:       mv.Balance.StringFixed(domain.QuantityPlaces),
	}, nil
}

func (h *GRPCHandler) LookupBarcode(ctx context.Context, req *LookupBarcodeRequest) (*LookupBarcodeResponse, error) {
	part, err := h.parts.GetByBarcode(ctx, req.Barcode)
	if errors.Is(err, domain.ErrNotFound) {
		return &LookupBarcodeResponse{Found: false}, nil
	}
	if err != nil {
		if st := grpcStatus(err); st != nil {
			return nil, st.Err()
		}
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &LookupBarcodeResponse{
		Found:      true,
		PartID:     part.ID,
		PartNumber: part.PartNumber,
		Name:       part.Name,
		Barcode:    part.Barcode,
		Quantity:   part.Quantity.StringFixed(domain.QuantityPlaces),
		Status:     string(part.Status),
	}, nil
}

// grpcStatus returns the status for failures the caller cannot fix by
// changing the request, or nil for business rejections.
func grpcStatus(err error) *status.Status {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrDuplicateRequest):
		return nil
	case errors.Is(err, domain.ErrStorageBusy):
		return status.New(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	}
	return status.New(codes.Internal, "internal error")
}

// UnaryInterceptor logs each call and lifts x-user / x-role metadata into
// the session actor.
func UnaryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if users := md.Get("x-user"); len(users) > 0 && users[0] != "" {
				actor := session.Actor{Username: users[0]}
				if roles := md.Get("x-role"); len(roles) > 0 {
					actor.Role = roles[0]
				}
				ctx = session.WithActor(ctx, actor)
			}
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(fields, zap.Error(err))...)
		} else {
			logger.Info("grpc call completed", fields...)
		}
		return resp, err
	}
}

// LedgerClient calls a remote LedgerService over the JSON codec.
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) RecordTransaction(ctx context.Context, in *RecordTransactionRequest, opts ...grpc.CallOption) (*RecordTransactionResponse, error) {
	out := new(RecordTransactionResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodRecordTransaction, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LedgerClient) LookupBarcode(ctx context.Context, in *LookupBarcodeRequest, opts ...grpc.CallOption) (*LookupBarcodeResponse, error) {
	out := new(LookupBarcodeResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, methodLookupBarcode, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
