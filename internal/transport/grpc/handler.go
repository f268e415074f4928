package grpc

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/astro-web3/superset-guest-relay/internal/app/guesttoken"
	domain "github.com/astro-web3/superset-guest-relay/internal/domain/guesttoken"
	"github.com/astro-web3/superset-guest-relay/pkg/tracer"
	"google.golang.org/protobuf/types/known/structpb"
)

// IssueGuestTokenProcedure accepts {"accessToken": string} and answers
// {"token": string}, both as google.protobuf.Struct.
const IssueGuestTokenProcedure = "/superset.relay.v1.GuestTokenService/IssueGuestToken"

const (
	fieldAccessToken = "accessToken"
	fieldToken       = "token"
)

type Handler struct {
	appService guesttoken.Service
}

func NewHandler(appService guesttoken.Service) *Handler {
	return &Handler{appService: appService}
}

func (h *Handler) IssueGuestToken(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	ctx, span := tracer.Start(ctx, "transport.grpc.IssueGuestToken")
	defer span.End()

	accessToken := req.Msg.GetFields()[fieldAccessToken].GetStringValue()

	token, err := h.appService.IssueGuestToken(ctx, accessToken)
	if err != nil {
		tracer.Fail(span, err)
		return nil, connect.NewError(connect.CodeInternal, errors.New(domain.PublicMessage(err)))
	}

	return connect.NewResponse(&structpb.Struct{
		Fields: map[string]*structpb.Value{
			fieldToken: structpb.NewStringValue(token),
		},
	}), nil
}

// Route returns the procedure path and its handler.
func (h *Handler) Route() (string, http.Handler) {
	return IssueGuestTokenProcedure, connect.NewUnaryHandler(
		IssueGuestTokenProcedure,
		h.IssueGuestToken,
		connect.WithInterceptors(callInterceptor()),
	)
}
