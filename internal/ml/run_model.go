package ml

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/intellicrop/weedmask-api/internal/dataset"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/clientcredentials"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const DefaultMaxMessageBytes = 256 * 1024 * 1024

type GRPCConfig struct {
	Address         string
	Channels        int
	MaxMessageBytes int

	// OAuth2 client credentials. When TokenURL is set the connection uses TLS and
	// attaches a bearer token to every call.
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// GRPCPredictor calls a remote model service.
type GRPCPredictor struct {
	conn     *grpc.ClientConn
	channels int
}

func NewGRPCPredictor(cfg GRPCConfig, extra ...grpc.DialOption) (*GRPCPredictor, error) {
	if cfg.Channels <= 0 {
		return nil, fmt.Errorf("model input channel count must be configured for the gRPC backend")
	}
	maxBytes := cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}

	opts := []grpc.DialOption{
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxBytes),
			grpc.MaxCallSendMsgSize(maxBytes),
		),
	}
	if cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		opts = append(opts,
			grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
			grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: cc.TokenSource(context.Background())}),
		)
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gRPC server: %w", err)
	}
	log.Info().Str("address", cfg.Address).Bool("oauth2", cfg.TokenURL != "").Msg("model service client ready")
	return &GRPCPredictor{conn: conn, channels: cfg.Channels}, nil
}

func (p *GRPCPredictor) Predict(ctx context.Context, in *dataset.Tensor) (*dataset.Tensor, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, shapeHeader, formatShape(in.Shape))

	var header metadata.MD
	resp := new(wrapperspb.BytesValue)
	if err := p.conn.Invoke(ctx, predictMethod, encodeTensor(in), resp, grpc.Header(&header)); err != nil {
		return nil, fmt.Errorf("error calling Predict: %w", err)
	}

	shape, err := parseShape(header.Get(shapeHeader))
	if err != nil {
		return nil, err
	}
	return decodeTensor(shape, resp)
}

func (p *GRPCPredictor) InputChannels() int {
	return p.channels
}

func (p *GRPCPredictor) Close() error {
	return p.conn.Close()
}
