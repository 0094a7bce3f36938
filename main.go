package main

import (
	segmentctl "github.com/privstream/privrec/internal/controllers/segment"
	statsctl "github.com/privstream/privrec/internal/controllers/stats"
	streamctl "github.com/privstream/privrec/internal/controllers/stream"
	"github.com/privstream/privrec/internal/modules/config"
	"github.com/privstream/privrec/internal/modules/rest"
	"github.com/privstream/privrec/internal/services/capture"
	"github.com/privstream/privrec/internal/services/file"
	"github.com/privstream/privrec/internal/services/persist"
	"github.com/privstream/privrec/internal/services/process"
	"github.com/privstream/privrec/internal/services/relocate"
	"github.com/privstream/privrec/internal/services/segment"
	"github.com/privstream/privrec/internal/services/stats"
	"github.com/privstream/privrec/internal/types"
	"github.com/privstream/privrec/pkg/blur"
	"github.com/privstream/privrec/pkg/pool"
	"github.com/privstream/privrec/pkg/rategate"
	"go.uber.org/fx"
)

func main() {

	app := fx.New(
		config.Module,
		rest.Module,

		fx.Provide(newQueues),
		fx.Provide(newFramePool),
		fx.Provide(newTransform),
		fx.Provide(newSource),
		fx.Provide(rategate.New),

		fx.Provide(stats.NewService),
		fx.Provide(segment.NewStore),
		fx.Provide(capture.NewService),
		fx.Provide(process.NewService),
		fx.Provide(persist.NewService),
		fx.Provide(relocate.NewService),
		fx.Provide(file.NewService),

		fx.Invoke(streamctl.NewController),
		fx.Invoke(statsctl.NewController),
		fx.Invoke(segmentctl.NewController),

		// pools have no downstream consumers; force their construction
		fx.Invoke(func(*process.Service, *persist.Service, *relocate.Service) {}),
	)

	app.Run()
}

func newQueues(cfg *config.Config) *types.Queues {
	return types.NewQueues(cfg.ProcessingQueue, cfg.PersistQueue)
}

func newFramePool(cfg *config.Config) *pool.BytesPool {
	return pool.NewBytesPool(cfg.FrameSize())
}

func newTransform(cfg *config.Config) process.Transform {
	return blur.NewPixelate(cfg.FrameWidth, cfg.FrameHeight, cfg.BlurBlock)
}

func newSource(cfg *config.Config, bp *pool.BytesPool) capture.Source {
	return capture.NewFFmpegSource(cfg, bp)
}
