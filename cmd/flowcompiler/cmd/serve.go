package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/flyteorg/flytestdlib/profutils"
	"github.com/spf13/cobra"

	"github.com/flyteorg/flowcompiler/pkg/compiler"
	ctrlConfig "github.com/flyteorg/flowcompiler/pkg/config"
	"github.com/flyteorg/flowcompiler/pkg/flowgraph/weights"
	"github.com/flyteorg/flowcompiler/pkg/monitor"
	"github.com/flyteorg/flowcompiler/pkg/signals"
	"github.com/flyteorg/flowcompiler/pkg/spec"
)

const maxFlowSpecSize = 1 << 20

type flowCompiler interface {
	Compile(ctx context.Context, flowSpec *spec.FlowSpec) (*compiler.Compilation, error)
	Healthy() bool
}

func healthHandler(c flowCompiler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Healthy() {
			http.Error(w, "flow graph not synced", http.StatusServiceUnavailable)
			return
		}

		_, _ = w.Write([]byte("ok"))
	})
}

// compileHandler compiles the flow spec posted in the body. The content type selects the flow spec format.
func compileHandler(c flowCompiler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if r.Method != http.MethodPost {
			http.Error(w, "use POST", http.StatusMethodNotAllowed)
			return
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxFlowSpecSize))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		flowSpec, err := LoadFlowSpec("flow"+formatExt(r.Header.Get("Content-Type")), raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := c.Compile(ctx, flowSpec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		buf := &bytes.Buffer{}
		if err := PrintCompilation(buf, res, OutputFormatJSON, r.URL.Query().Get("config") == "true"); err != nil {
			logger.Errorf(ctx, "failed to render compilation of %s: %v", flowSpec, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if res.Dag.IsEmpty() {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}

		_, _ = w.Write(buf.Bytes())
	})
}

func runServe(origContext context.Context, cfg *ctrlConfig.Config) error {
	// set up signals so we handle the first shutdown signal gracefully
	ctx := signals.SetupSignalHandler(origContext)

	env, err := newEnvironment(ctx, cfg.MetricsPrefix)
	if err != nil {
		return err
	}

	var opts []compiler.Option
	weightsCfg := weights.GetConfig()
	source, err := weights.NewLoadSource(ctx, weightsCfg)
	if err != nil {
		return err
	}

	if source != nil {
		opts = append(opts, compiler.WithEdgeWeights(source, weightsCfg.RefreshInterval.Duration))
	}

	comp, err := env.newCompiler(ctx, monitor.GetConfig(), cfg.GraphDir, opts...)
	if err != nil {
		return err
	}

	defer comp.Stop()

	handlers := map[string]http.Handler{
		"/healthz":        healthHandler(comp),
		"/api/v1/compile": compileHandler(comp),
	}

	go func() {
		err := profutils.StartProfilingServerWithDefaultHandlers(ctx, cfg.ProfilerPort.Port, handlers)
		if err != nil {
			logger.Panicf(ctx, "Failed to Start profiling and metrics server. Error: %v", err)
		}
	}()

	logger.Infof(ctx, "Started flow compiler, listening on port [%d]", cfg.ProfilerPort.Port)
	<-ctx.Done()
	logger.Info(ctx, "Shutting down flow compiler")
	return nil
}

func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Keeps the flow graph in sync with its definitions and compiles flow specs posted over http.",
		Long: `Flow specs are posted to /api/v1/compile as properties, yaml or json (selected by the content type).
Add ?config=true to include the resolved config of every job. /healthz reports whether the flow graph is synced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(context.Background(), ctrlConfig.GetConfig())
		},
	}
}
