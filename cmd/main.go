/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that the kubernetes source can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/mehdiazizian/metrics-server-prom/internal/config"
	"github.com/mehdiazizian/metrics-server-prom/internal/metrics"
	"github.com/mehdiazizian/metrics-server-prom/internal/server"
	"github.com/mehdiazizian/metrics-server-prom/internal/telemetry"
	"github.com/mehdiazizian/metrics-server-prom/internal/transport"
	transporthttp "github.com/mehdiazizian/metrics-server-prom/internal/transport/http"
	"github.com/mehdiazizian/metrics-server-prom/internal/transport/kube"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	var configPath string

	opts := zap.Options{
		Development: true,
	}

	cmd := &cobra.Command{
		Use:   "metrics-server-prom",
		Short: "Expose Kubernetes metrics-server data in Prometheus format",
		Long: `
metrics-server-prom reads node and pod usage from the metrics.k8s.io API
and serves it as Prometheus text exposition on /metrics, together with a
/healthz endpoint reporting whether the metrics API is reachable.
`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

			if configPath != "" {
				fileCfg, err := config.Load(configPath)
				if err != nil {
					setupLog.Error(err, "unable to load config", "path", configPath)
					return err
				}
				// Flags given explicitly win over the file
				if err := applyChangedFlags(cmd.Flags(), &fileCfg); err != nil {
					setupLog.Error(err, "unable to apply flags")
					return err
				}
				cfg = fileCfg
			}

			if err := cfg.Validate(); err != nil {
				setupLog.Error(err, "invalid configuration")
				return err
			}

			ctx := log.IntoContext(ctrl.SetupSignalHandler(), ctrl.Log)
			return run(ctx, cfg)
		},
	}

	bindFlags(cmd.Flags(), &cfg)
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file; explicit flags override its values")

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(goFlags)
	cmd.Flags().AddGoFlagSet(goFlags)

	return cmd
}

func bindFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.BindAddress, "bind-address", cfg.BindAddress, "The address the exporter binds to.")
	fs.StringVar(&cfg.TelemetryBindAddress, "telemetry-bind-address", cfg.TelemetryBindAddress,
		"The address serving the exporter's own metrics. Use 0 to disable.")
	fs.StringVar((*string)(&cfg.Source), "source", string(cfg.Source),
		"How to reach the metrics API (proxy|kubernetes).")
	fs.StringVar(&cfg.UpstreamURL, "upstream-url", cfg.UpstreamURL,
		"Base URL of the metrics API for the proxy source, e.g. a kubectl proxy.")
	fs.StringVar(&cfg.UpstreamCertPath, "upstream-cert-path", cfg.UpstreamCertPath,
		"Directory with tls.crt, tls.key and ca.crt for mTLS to the upstream (optional).")
	fs.StringVar(&cfg.Kubeconfig, "kubeconfig", cfg.Kubeconfig,
		"Path to a kubeconfig for the kubernetes source. Empty uses in-cluster config.")
	fs.DurationVar(&cfg.RequestTimeout.Duration, "request-timeout", cfg.RequestTimeout.Duration,
		"Timeout of each upstream request.")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries,
		"Retries for upstream server errors (proxy source).")
	fs.DurationVar(&cfg.ShutdownTimeout.Duration, "shutdown-timeout", cfg.ShutdownTimeout.Duration,
		"Time allowed for in-flight requests on shutdown.")
}

// applyChangedFlags copies the flags set on the command line onto cfg.
func applyChangedFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	overrides := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
	bindFlags(overrides, cfg)

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil || overrides.Lookup(f.Name) == nil {
			return
		}
		if setErr := overrides.Set(f.Name, f.Value.String()); setErr != nil {
			err = fmt.Errorf("flag --%s: %w", f.Name, setErr)
		}
	})
	return err
}

func newSource(cfg config.Config) (transport.MetricsSource, error) {
	switch cfg.Source {
	case config.SourceKubernetes:
		return kube.NewSource(cfg.Kubeconfig, cfg.RequestTimeout.Duration)
	case config.SourceProxy:
		return transporthttp.NewSource(transporthttp.Options{
			BaseURL:    cfg.UpstreamURL,
			CertPath:   cfg.UpstreamCertPath,
			Timeout:    cfg.RequestTimeout.Duration,
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	source, err := newSource(cfg)
	if err != nil {
		setupLog.Error(err, "unable to create metrics source", "source", cfg.Source)
		return err
	}
	defer source.Close()

	setupLog.Info("Metrics source initialized",
		"source", cfg.Source,
		"upstreamURL", cfg.UpstreamURL,
		"requestTimeout", cfg.RequestTimeout.Duration)

	registry := telemetry.NewRegistry()
	recorder, err := telemetry.NewRecorder(registry)
	if err != nil {
		setupLog.Error(err, "unable to register telemetry")
		return err
	}

	collector := &metrics.Collector{
		Source:   source,
		Timeout:  cfg.RequestTimeout.Duration,
		Recorder: recorder,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx, "exporter", cfg.BindAddress,
			server.NewServer(collector, recorder).Handler(), cfg.ShutdownTimeout.Duration)
	})
	if cfg.TelemetryEnabled() {
		g.Go(func() error {
			return server.ListenAndServe(ctx, "telemetry", cfg.TelemetryBindAddress,
				telemetry.Handler(registry), cfg.ShutdownTimeout.Duration)
		})
	}

	setupLog.Info("starting exporter", "bindAddress", cfg.BindAddress)
	if err := g.Wait(); err != nil {
		setupLog.Error(err, "problem running exporter")
		return err
	}
	return nil
}
