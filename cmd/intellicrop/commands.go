package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bannercolor "github.com/fatih/color"
	"github.com/intellicrop/weedmask-api/internal/delivery"
	"github.com/intellicrop/weedmask-api/internal/httpapi"
	"github.com/intellicrop/weedmask-api/internal/ml"
	"github.com/intellicrop/weedmask-api/internal/properties"
	"github.com/intellicrop/weedmask-api/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

func newIndicesCmd(cfg *properties.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "indices <dir>",
		Short: "Compute the spectral index GeoTIFFs of every capture under dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := delivery.ProcessCaptures(args[0]); err != nil {
				return err
			}
			bannercolor.Green("Spectral indices written under %s", args[0])
			return nil
		},
	}
}

func newAssembleCmd(cfg *properties.Config) *cobra.Command {
	var manifest string
	cmd := &cobra.Command{
		Use:   "assemble <dir>",
		Short: "Stack the samples under dir and write a per-channel manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := assembler(*cfg)
			if err != nil {
				return err
			}
			if manifest == "" {
				manifest = filepath.Join(cfg.RootPath, "data", "dataset", filepath.Base(filepath.Clean(args[0]))+".csv")
			}
			ds, err := delivery.RunCreateDataset(cmd.Context(), a, args[0], manifest)
			if err != nil {
				return err
			}
			bannercolor.Green("Assembled %d samples %v (%d rejected), manifest at %s",
				ds.Tensor.Samples(), ds.Tensor.ShapeSlice(), len(ds.Rejected), manifest)
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifest, "manifest", "o", "", "manifest CSV path")
	return cmd
}

func newPredictCmd(cfg *properties.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "predict <zip|dir>",
		Short: "Predict the weed mask of a capture and save the rendered results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := buildRuntime(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			record, err := deps.pipeline.Evaluate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			bannercolor.Green("\nSuccessful analysis! Prediction %s", record.ID)
			for _, k := range utils.SortedKeys(record.ImageInfo) {
				bannercolor.Green("  %-10s %s", k, record.ImageInfo[k])
			}
			bannercolor.Green("Mask located at: %s", filepath.Join(cfg.HTTP.ResultDir, record.Files.Mask))
			return nil
		},
	}
}

func newServeCmd(cfg *properties.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps, err := buildRuntime(ctx, *cfg)
			if err != nil {
				return err
			}
			defer deps.Close()

			api := httpapi.New(httpapi.Options{
				UploadDir:      cfg.HTTP.UploadDir,
				ResultDir:      cfg.HTTP.ResultDir,
				AllowedOrigins: cfg.HTTP.AllowedOrigins,
				MaxUploadBytes: cfg.HTTP.MaxUploadMB << 20,
			}, deps.pipeline, deps.records)
			srv := api.NewHTTPServer(cfg.HTTP.Addr)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.HTTP.Addr).Msg("upload API listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newModelServerCmd(cfg *properties.Config) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "model-server",
		Short: "Serve a local ONNX model over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ml.NewONNXPredictor(cfg.Model.Path, cfg.Model.LibraryPath, cfg.Model.Channels)
			if err != nil {
				return err
			}
			defer p.Close()

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", addr, err)
			}
			s := grpc.NewServer(
				grpc.MaxRecvMsgSize(ml.DefaultMaxMessageBytes),
				grpc.MaxSendMsgSize(ml.DefaultMaxMessageBytes),
			)
			ml.RegisterPredictorServer(s, p)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				s.GracefulStop()
			}()

			log.Info().Str("addr", addr).Str("model", cfg.Model.Path).Int("channels", p.InputChannels()).Msg("model server listening")
			return s.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":50051", "listen address")
	return cmd
}
