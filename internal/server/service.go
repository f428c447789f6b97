package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"PerpVault/internal/core"
	"PerpVault/internal/ingestion"
	fpmath "PerpVault/internal/math"
	"PerpVault/internal/query"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "perpvault.v1.PerpVault"

// --- requests and responses ---

type SubmitCommandRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type SubmitCommandResponse struct {
	Sequence  int64    `json:"sequence"`
	StateHash string   `json:"state_hash"`
	Records   []Record `json:"records,omitempty"`
}

// Record is an emitted record with its kind.
type Record struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

type InjectPriceRequest struct {
	Feed     string `json:"feed"`
	Price    string `json:"price"`
	Sequence int64  `json:"sequence"`
}

type OwnerRequest struct {
	Owner string `json:"owner"`
}

type HistoryRequest struct {
	Owner     string  `json:"owner"`
	ProductID *uint32 `json:"product_id,omitempty"`
	Limit     int     `json:"limit,omitempty"`
	Before    int64   `json:"before,omitempty"`
}

type Empty struct{}

// LiveVaultResponse is read from the core, not from projections, so it is
// current as of Sequence.
type LiveVaultResponse struct {
	Balance         string `json:"balance"`
	Staked          string `json:"staked"`
	TotalShares     string `json:"total_shares"`
	Cap             string `json:"cap"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
	PendingProtocol string `json:"pending_protocol_reward"`
	PendingStaking  string `json:"pending_staking_reward"`
	PendingVault    string `json:"pending_vault_reward"`
	Sequence        int64  `json:"sequence"`
}

type SnapshotResponse struct {
	Taken bool `json:"taken"`
}

type RebuildResponse struct {
	Events int64 `json:"events"`
}

type EventLogInfoResponse struct {
	LastSequence int64     `json:"last_sequence"`
	Watermark    int64     `json:"projection_watermark"`
	Uptime       string    `json:"uptime"`
	StartedAt    time.Time `json:"started_at"`
}

// Deps holds the collaborators behind the RPC surface. Query-backed
// methods answer Unavailable when no database is wired.
type Deps struct {
	Inbox     *core.Inbox
	Ingest    *ingestion.GRPCIngestService
	Query     *query.QueryService
	Snapshot  func(ctx context.Context) error
	Rebuild   func(ctx context.Context) (int64, error)
	LastSeq   func(ctx context.Context) (int64, error)
	StartTime time.Time
}

// Service implements the PerpVault RPCs over Deps.
type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	return &Service{deps: deps}
}

func (s *Service) SubmitCommand(ctx context.Context, req *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	if req.EventType == "" {
		return nil, status.Error(codes.InvalidArgument, "event_type is required")
	}
	out, err := s.deps.Ingest.SubmitEvent(ctx, req.EventType, req.Payload)
	if err != nil {
		return nil, toStatus(err)
	}
	return commandResponse(out), nil
}

func (s *Service) InjectPrice(ctx context.Context, req *InjectPriceRequest) (*SubmitCommandResponse, error) {
	out, err := s.deps.Ingest.InjectOraclePrice(ctx, req.Feed, req.Price, req.Sequence)
	if err != nil {
		return nil, toStatus(err)
	}
	return commandResponse(out), nil
}

func commandResponse(out *core.CoreOutput) *SubmitCommandResponse {
	resp := &SubmitCommandResponse{
		Sequence:  out.Envelope.Sequence,
		StateHash: hexHash(out.Envelope.StateHash),
	}
	for _, r := range out.Records {
		resp.Records = append(resp.Records, Record{Name: r.RecordName(), Payload: r})
	}
	return resp
}

func (s *Service) GetLiveVault(ctx context.Context, _ *Empty) (*LiveVaultResponse, error) {
	var resp LiveVaultResponse
	err := s.deps.Inbox.View(ctx, func(e *core.Engine) {
		v := e.GetVault()
		resp = LiveVaultResponse{
			Balance:         v.Balance.String(),
			Staked:          v.Staked.String(),
			TotalShares:     e.GetTotalShare().String(),
			Cap:             v.Cap.String(),
			CooldownSeconds: v.Cooldown,
			PendingProtocol: e.GetPendingProtocolReward().String(),
			PendingStaking:  e.GetPendingPikaReward().String(),
			PendingVault:    e.GetPendingVaultReward().String(),
			Sequence:        e.GetSequence(),
		}
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *Service) GetPositions(ctx context.Context, req *OwnerRequest) (*[]query.PositionResponse, error) {
	owner, qs, err := s.ownerQuery(req.Owner)
	if err != nil {
		return nil, err
	}
	positions, err := qs.GetPositions(ctx, owner)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get positions: %v", err)
	}
	if positions == nil {
		positions = []query.PositionResponse{}
	}
	return &positions, nil
}

func (s *Service) GetBalance(ctx context.Context, req *OwnerRequest) (*query.BalanceResponse, error) {
	owner, qs, err := s.ownerQuery(req.Owner)
	if err != nil {
		return nil, err
	}
	resp, err := qs.GetBalance(ctx, owner)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get balance: %v", err)
	}
	return resp, nil
}

func (s *Service) GetStake(ctx context.Context, req *OwnerRequest) (*query.StakeResponse, error) {
	owner, qs, err := s.ownerQuery(req.Owner)
	if err != nil {
		return nil, err
	}
	resp, err := qs.GetStake(ctx, owner)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get stake: %v", err)
	}
	if resp == nil {
		return nil, status.Errorf(codes.NotFound, "no stake for %s", owner)
	}
	return resp, nil
}

func (s *Service) GetVault(ctx context.Context, _ *Empty) (*query.VaultResponse, error) {
	if s.deps.Query == nil {
		return nil, errNoQuery
	}
	resp, err := s.deps.Query.GetVault(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get vault: %v", err)
	}
	return resp, nil
}

func (s *Service) GetFeePools(ctx context.Context, _ *Empty) (*query.FeePoolsResponse, error) {
	if s.deps.Query == nil {
		return nil, errNoQuery
	}
	resp, err := s.deps.Query.GetFeePools(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "get fee pools: %v", err)
	}
	return resp, nil
}

func (s *Service) ListTrades(ctx context.Context, req *HistoryRequest) (*query.Page[query.TradeResponse], error) {
	owner, qs, err := s.ownerQuery(req.Owner)
	if err != nil {
		return nil, err
	}
	page, err := qs.GetTradeHistory(ctx, owner, req.Limit, req.Before)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list trades: %v", err)
	}
	return page, nil
}

func (s *Service) ListFunding(ctx context.Context, req *HistoryRequest) (*query.Page[query.FundingHistoryResponse], error) {
	owner, qs, err := s.ownerQuery(req.Owner)
	if err != nil {
		return nil, err
	}
	page, err := qs.GetFundingHistory(ctx, owner, req.ProductID, req.Limit, req.Before)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list funding: %v", err)
	}
	return page, nil
}

func (s *Service) ListJournals(ctx context.Context, req *HistoryRequest) (*query.Page[query.JournalHistoryEntry], error) {
	owner, qs, err := s.ownerQuery(req.Owner)
	if err != nil {
		return nil, err
	}
	page, err := qs.GetJournalHistory(ctx, owner, req.Limit, req.Before)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list journals: %v", err)
	}
	return page, nil
}

// --- admin ---

func (s *Service) VerifyIntegrity(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	if s.deps.Query == nil {
		return nil, errNoQuery
	}
	report, err := s.deps.Query.VerifyIntegrity(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "verify integrity: %v", err)
	}
	return report, nil
}

func (s *Service) TakeSnapshot(ctx context.Context, _ *Empty) (*SnapshotResponse, error) {
	if s.deps.Snapshot == nil {
		return nil, status.Error(codes.Unimplemented, "snapshots are not configured")
	}
	if err := s.deps.Snapshot(ctx); err != nil {
		return nil, status.Errorf(codes.Internal, "snapshot: %v", err)
	}
	return &SnapshotResponse{Taken: true}, nil
}

func (s *Service) RebuildProjections(ctx context.Context, _ *Empty) (*RebuildResponse, error) {
	if s.deps.Rebuild == nil {
		return nil, status.Error(codes.Unimplemented, "rebuild is not configured")
	}
	n, err := s.deps.Rebuild(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "rebuild failed: %v", err)
	}
	return &RebuildResponse{Events: n}, nil
}

func (s *Service) GetEventLogInfo(ctx context.Context, _ *Empty) (*EventLogInfoResponse, error) {
	resp := &EventLogInfoResponse{
		StartedAt: s.deps.StartTime.UTC(),
		Uptime:    time.Since(s.deps.StartTime).Truncate(time.Second).String(),
	}
	if s.deps.LastSeq != nil {
		seq, err := s.deps.LastSeq(ctx)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "get latest sequence: %v", err)
		}
		resp.LastSequence = seq
	}
	if s.deps.Query != nil {
		wm, err := s.deps.Query.Watermark(ctx)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "get watermark: %v", err)
		}
		resp.Watermark = wm
	}
	return resp, nil
}

// --- helpers ---

var errNoQuery = status.Error(codes.Unavailable, "query service is not configured")

func (s *Service) ownerQuery(raw string) (uuid.UUID, *query.QueryService, error) {
	if raw == "" {
		return uuid.Nil, nil, status.Error(codes.InvalidArgument, "owner is required")
	}
	owner, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, nil, status.Errorf(codes.InvalidArgument, "invalid owner: %v", err)
	}
	if s.deps.Query == nil {
		return uuid.Nil, nil, errNoQuery
	}
	return owner, s.deps.Query, nil
}

// toStatus maps core and ingestion errors onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, ingestion.ErrMalformed), errors.Is(err, fpmath.ErrOverflow),
		errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrInvalidPrice),
		errors.Is(err, core.ErrInvalidConfig), errors.Is(err, core.ErrLeverageOutOfBounds),
		errors.Is(err, core.ErrFutureTimestamp):
		code = codes.InvalidArgument
	case errors.Is(err, core.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, core.ErrDuplicate):
		code = codes.AlreadyExists
	case errors.Is(err, core.ErrUnknownProduct), errors.Is(err, core.ErrPositionNotFound),
		errors.Is(err, core.ErrStakeNotFound):
		code = codes.NotFound
	case errors.Is(err, core.ErrInboxClosed):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		// Every remaining core rejection is an economic guard on current
		// state.
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}

func hexHash(h [32]byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range h {
		out[2*i] = digits[b>>4]
		out[2*i+1] = digits[b&0x0f]
	}
	return string(out)
}

// --- service descriptor ---

// unary adapts a typed method into a grpc.MethodDesc.
func unary[Req, Resp any](name string, fn func(*Service, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s: %v", name, err)
			}
			svc := srv.(*Service)
			if interceptor == nil {
				return fn(svc, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return fn(svc, ctx, req.(*Req))
			})
		},
	}
}

// ServiceDesc describes the PerpVault service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("SubmitCommand", (*Service).SubmitCommand),
		unary("InjectPrice", (*Service).InjectPrice),
		unary("GetLiveVault", (*Service).GetLiveVault),
		unary("GetPositions", (*Service).GetPositions),
		unary("GetBalance", (*Service).GetBalance),
		unary("GetStake", (*Service).GetStake),
		unary("GetVault", (*Service).GetVault),
		unary("GetFeePools", (*Service).GetFeePools),
		unary("ListTrades", (*Service).ListTrades),
		unary("ListFunding", (*Service).ListFunding),
		unary("ListJournals", (*Service).ListJournals),
		unary("VerifyIntegrity", (*Service).VerifyIntegrity),
		unary("TakeSnapshot", (*Service).TakeSnapshot),
		unary("RebuildProjections", (*Service).RebuildProjections),
		unary("GetEventLogInfo", (*Service).GetEventLogInfo),
	},
	Metadata: "perpvault/v1/service",
}
