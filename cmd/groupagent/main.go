package main

import (
	"context"
	_ "embed"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LouYuanbo1/groupagent/internal/config"
	"github.com/LouYuanbo1/groupagent/internal/domain/model"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/chrome"
	"github.com/LouYuanbo1/groupagent/internal/infra/crawler/dom"
	"github.com/LouYuanbo1/groupagent/internal/infra/persistence/badger"
	"github.com/LouYuanbo1/groupagent/internal/infra/persistence/es"
	"github.com/LouYuanbo1/groupagent/internal/infra/transport"
	"github.com/LouYuanbo1/groupagent/internal/server"
	"github.com/LouYuanbo1/groupagent/internal/service/events"
	"github.com/LouYuanbo1/groupagent/internal/service/orchestrator"
	"github.com/LouYuanbo1/groupagent/internal/service/results"
	"github.com/LouYuanbo1/groupagent/internal/service/worker"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
)

// 未指定 -config 时使用嵌入的样例配置
//
//go:embed appconfig/appconfig.json
var appConfig []byte

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.ParseConfig(appConfig)
	}
	return config.LoadConfig(path)
}

func initPageHost(ctx context.Context, cfg *config.Config, logger arbor.ILogger) (chrome.PageHost, error) {
	if cfg.Browser.Backend == "chromedp" {
		return chrome.InitChromedpPageHost(ctx, cfg, logger)
	}
	return chrome.InitRodPageHost(cfg, logger)
}

func main() {
	configPath := flag.String("config", os.Getenv("GROUPAGENT_CONFIG"), "配置文件路径 (json/toml/yaml)")
	flag.Parse()

	appcfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("解析配置失败: %v", err)
	}

	logger := arbor.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := badger.InitKVStore(appcfg, logger)
	if err != nil {
		log.Fatalf("初始化Badger存储失败: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close badger store")
		}
	}()

	host, err := initPageHost(ctx, appcfg, logger)
	if err != nil {
		log.Fatalf("初始化浏览器失败: %v", err)
	}
	defer host.Close()

	cache, err := worker.NewResultCache(ms(appcfg.Worker.CacheTTLMs), appcfg.Worker.CacheSize)
	if err != nil {
		log.Fatalf("初始化结果缓存失败: %v", err)
	}
	defer cache.Close()

	bus := transport.NewBus(logger)
	hub := events.NewHub(0, logger)
	// 终止事件不随积压丢弃,结果索引依赖 DONE
	hub.MustDeliver(time.Second, model.EventDone, model.EventFailed)
	defer hub.Close()

	injector := worker.NewInjector(bus, func(p chrome.Page) worker.Surface {
		return dom.NewSurface(p.Driver(), dom.DefaultDelays(), logger)
	}, workerOptions(appcfg), cache, logger)

	coordinator := orchestrator.NewOrchestrator(orchestratorOptions(appcfg), host, injector, bus, hub, store, logger)
	defer coordinator.Close()
	if err := coordinator.Recover(ctx); err != nil {
		log.Fatalf("恢复编排器状态失败: %v", err)
	}

	// 运行中的任务定期落盘,进程被杀时也能在重启后识别
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(appcfg.Orchestrator.SnapshotSchedule, coordinator.SnapshotNow); err != nil {
		log.Fatalf("注册快照任务失败: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)

	var members server.MemberSearch
	if appcfg.Elasticsearch.Enabled {
		//运行前确保es服务启动完成
		esClient, err := es.InitTypedEsClient[*model.MemberDoc](appcfg, logger)
		if err != nil {
			log.Fatalf("初始化Elasticsearch客户端失败: %v", err)
		}
		if err := esClient.CreateIndexWithMapping(ctx); err != nil {
			log.Fatalf("创建索引失败: %v", err)
		}
		if count, err := esClient.CountDocs(ctx); err == nil {
			logger.Info().Int64("count", count).Msg("Member index ready")
		}
		members = results.NewMemberQuery(esClient)

		doneCh, cancelDone := hub.Subscribe()
		defer cancelDone()
		indexer := results.NewIndexer(esClient, time.Minute, logger)
		g.Go(func() error { return indexer.Run(gctx, doneCh) })
	}

	srv := server.NewServer(serverOptions(appcfg), bus, members, logger)
	wsCh, cancelWS := hub.Subscribe()
	defer cancelWS()
	g.Go(func() error { return srv.Run(gctx, wsCh) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	logger.Info().
		Str("backend", appcfg.Browser.Backend).
		Str("target", appcfg.Browser.TargetURL).
		Msg("groupagent started")

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("groupagent stopped with error")
		return
	}
	logger.Info().Msg("groupagent stopped")
}
