package pipeline

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/pipewright/internal/config"
	"github.com/Iron-Ham/pipewright/internal/launcher"
	"github.com/Iron-Ham/pipewright/internal/logging"
	"github.com/Iron-Ham/pipewright/internal/orchestrator"
	"github.com/Iron-Ham/pipewright/internal/registry"
	"github.com/Iron-Ham/pipewright/internal/worktree"
)

// runtime bundles what every pipeline command needs: the resolved
// configuration, the logger and an orchestrator rooted at the main working
// tree.
type runtime struct {
	root   string
	cfg    *config.Config
	logger *logging.Logger
	orch   *orchestrator.Orchestrator
}

func newRuntime() (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	root, err := worktree.FindMainRoot(cwd)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLoggerWithRotation(config.LogDir(root), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			// Logging is best-effort; the command still runs.
			fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		} else {
			logger = l
		}
	}

	wtCfg, err := worktree.LoadConfig(root)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	wt, err := worktree.New(root, wtCfg)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	reg, err := registry.Open(root, cfg.ResolveDeveloper(root),
		registry.WithLiveness(launcher.IsAlive),
		registry.WithLogger(logger),
	)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	l := launcher.New(
		launcher.WithLogger(logger),
		launcher.WithStopTimeout(cfg.Agent.StopTimeout()),
	)

	return &runtime{
		root:   root,
		cfg:    cfg,
		logger: logger,
		orch:   orchestrator.New(root, cfg, wt, reg, l, orchestrator.WithLogger(logger)),
	}, nil
}

func (r *runtime) Close() {
	_ = r.logger.Close()
}
