package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// NewGatewayMux maps the HTTP/JSON routes onto VaultService calls made
// through client. The Authorization header is forwarded as gRPC metadata.
func NewGatewayMux(client *VaultClient) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	routes := []struct {
		method, pattern string
		handler         runtime.HandlerFunc
	}{
		{http.MethodPost, "/v1/accounts", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			var req AccountRequest
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			return client.CreateAccount(ctx, &req)
		})},
		{http.MethodGet, "/v1/accounts/{owner}", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			return client.ListAccounts(ctx, &ListAccountsRequest{Owner: p["owner"]})
		})},
		{http.MethodGet, "/v1/accounts/{owner}/{asset}", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			return client.GetAccount(ctx, &AccountRequest{Owner: p["owner"], Asset: p["asset"]})
		})},
		{http.MethodDelete, "/v1/accounts/{owner}/{asset}", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			return client.CloseAccount(ctx, &AccountRequest{Owner: p["owner"], Asset: p["asset"]})
		})},
		{http.MethodPost, "/v1/accounts/{owner}/{asset}/deposit", amountRoute(client.Deposit)},
		{http.MethodPost, "/v1/accounts/{owner}/{asset}/withdraw", amountRoute(client.Withdraw)},
		{http.MethodPost, "/v1/accounts/{owner}/{asset}/lock", amountRoute(client.Lock)},
		{http.MethodPost, "/v1/accounts/{owner}/{asset}/unlock", amountRoute(client.Unlock)},
		{http.MethodPost, "/v1/transfers", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			var req TransferRequest
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			return client.Transfer(ctx, &req)
		})},
		{http.MethodPost, "/v1/authority", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			var req InitializeAuthorityRequest
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			return client.InitializeAuthority(ctx, &req)
		})},
		{http.MethodGet, "/v1/authority", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			return client.GetRegistry(ctx, &Empty{})
		})},
		{http.MethodPost, "/v1/authority/callers", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			var req CallerRequest
			if err := decodeBody(r, &req); err != nil {
				return nil, err
			}
			return client.AddCaller(ctx, &req)
		})},
		{http.MethodDelete, "/v1/authority/callers/{caller}", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			return client.RemoveCaller(ctx, &CallerRequest{Caller: p["caller"]})
		})},
		{http.MethodGet, "/v1/events", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			req := ListEventsRequest{}
			q := r.URL.Query()
			var err error
			if v := q.Get("after"); v != "" {
				if req.After, err = strconv.ParseInt(v, 10, 64); err != nil {
					return nil, status.Error(codes.InvalidArgument, "after must be an integer")
				}
			}
			if v := q.Get("limit"); v != "" {
				if req.Limit, err = strconv.Atoi(v); err != nil {
					return nil, status.Error(codes.InvalidArgument, "limit must be an integer")
				}
			}
			return client.ListEvents(ctx, &req)
		})},
		{http.MethodGet, "/v1/admin/verify", handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
			return client.VerifyChain(ctx, &Empty{})
		})},
	}
	for _, rt := range routes {
		if err := mux.HandlePath(rt.method, rt.pattern, rt.handler); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

type gatewayCall func(ctx context.Context, r *http.Request, params map[string]string) (any, error)

func handle(call gatewayCall) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx := r.Context()
		if authz := r.Header.Get("Authorization"); authz != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", authz)
		}
		resp, err := call(ctx, r, params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func amountRoute(call func(context.Context, *AmountRequest, ...grpc.CallOption) (*AccountResponse, error)) runtime.HandlerFunc {
	return handle(func(ctx context.Context, r *http.Request, p map[string]string) (any, error) {
		var req AmountRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		req.Owner, req.Asset = p["owner"], p["asset"]
		return call(ctx, &req)
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return status.Errorf(codes.InvalidArgument, "decode body: %v", err)
	}
	return nil
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	st := status.Convert(err)
	writeJSON(w, runtime.HTTPStatusFromCode(st.Code()), errorBody{
		Code:    st.Code().String(),
		Message: st.Message(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
