package ml

import (
	"context"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type tensorServer interface {
	predict(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

var predictorServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*tensorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Predict", Handler: predictHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "intellicrop/model/v1/predictor.proto",
}

func predictHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tensorServer).predict(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: predictMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(tensorServer).predict(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

type predictorService struct {
	predictor Predictor
}

// RegisterPredictorServer exposes p on s under the model service contract, so a
// local model can be shared by several API instances.
func RegisterPredictorServer(s *grpc.Server, p Predictor) {
	s.RegisterService(&predictorServiceDesc, &predictorService{predictor: p})
}

func (s *predictorService) predict(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	shape, err := parseShape(md.Get(shapeHeader))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	in, err := decodeTensor(shape, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if in.Channels() != s.predictor.InputChannels() {
		return nil, status.Errorf(codes.InvalidArgument, "model expects %d channels, got %d", s.predictor.InputChannels(), in.Channels())
	}

	out, err := s.predictor.Predict(ctx, in)
	if err != nil {
		log.Error().Err(err).Ints("shape", in.ShapeSlice()).Msg("prediction failed")
		return nil, status.Error(codes.Internal, err.Error())
	}
	if err := grpc.SetHeader(ctx, metadata.Pairs(shapeHeader, formatShape(out.Shape))); err != nil {
		return nil, err
	}
	return encodeTensor(out), nil
}
