package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/swaggo/swag"

	"github.com/jhoicas/cte-api/docs"
	"github.com/jhoicas/cte-api/internal/application/emission"
	"github.com/jhoicas/cte-api/internal/application/inbound"
	"github.com/jhoicas/cte-api/internal/domain/cte"
	"github.com/jhoicas/cte-api/internal/domain/entity"
	"github.com/jhoicas/cte-api/internal/infrastructure/cache"
	infrapdf "github.com/jhoicas/cte-api/internal/infrastructure/pdf"
	"github.com/jhoicas/cte-api/internal/infrastructure/postgres"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz"
	"github.com/jhoicas/cte-api/internal/infrastructure/sefaz/signer"
	httpRouter "github.com/jhoicas/cte-api/internal/interfaces/http"
	"github.com/jhoicas/cte-api/pkg/config"
	"github.com/jhoicas/cte-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sefaz_mode", cfg.SEFAZ.Mode).
		Int("tpAmb", cfg.SEFAZ.Environment).
		Msg("iniciando aplicação")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexão com PostgreSQL")
	}
	defer pool.Close()

	branchRepo := branchDefaults{BranchRepository: postgres.NewBranchRepository(pool), sefaz: cfg.SEFAZ}
	cteRepo := postgres.NewCTeRepository(pool)
	inboundRepo := postgres.NewInboundDocumentRepository(pool)
	txRunner := postgres.NewTxRunner(pool)

	// SEFAZ: tabela de endpoints, certificados A1 e um gateway por filial
	endpoints := sefaz.NewDefaultEndpointTable()
	certSvc := signer.NewCertificateService(signer.WithLogger(log))
	retry := sefaz.DefaultRetryPolicy()
	if cfg.SEFAZ.MaxRetries > 0 {
		retry.Attempts = cfg.SEFAZ.MaxRetries
	}
	gateways := sefaz.NewBranchGateways(sefaz.GatewayConfig{
		Mode:                  sefaz.ParseMode(cfg.SEFAZ.Mode),
		Environment:           cfg.SEFAZ.Environment,
		Timeout:               cfg.SEFAZ.Timeout,
		Retry:                 retry,
		DistributionPerMinute: cfg.SEFAZ.DistPerMinute,
	}, endpoints, certSvc, log)

	builder := sefaz.NewXMLBuilderService(
		cte.NewAccessKeyGenerator(cte.CryptoRandom{}),
		sefaz.WithQRCode(endpoints),
		sefaz.WithLogger(log),
	)

	var emissionOpts []emission.Option
	if cfg.SEFAZ.SchemaPath != "" {
		validator, err := sefaz.NewSchemaValidator(cfg.SEFAZ.SchemaPath)
		if err != nil {
			log.Fatal().Err(err).Str("xsd", cfg.SEFAZ.SchemaPath).Msg("carregar XSD do CT-e")
		}
		defer validator.Close()
		emissionOpts = append(emissionOpts, emission.WithSchemaValidation(validator))
	}

	// Emissão: montagem → assinatura → transmissão → autorização → DACTE
	emissionSvc := emission.NewService(
		branchRepo, cteRepo, builder, certSvc,
		emission.GatewayProviderFunc(func(ctx context.Context, b *entity.Branch) (emission.FiscalGateway, error) {
			gw, err := gateways.ForBranch(ctx, b)
			if err != nil {
				return nil, err
			}
			return gw, nil
		}),
		infrapdf.NewMarotoDACTEGenerator(),
		log,
		emissionOpts...,
	)

	// Documentos recebidos: trava por filial em Redis (ou memória em instância única)
	var locker inbound.Locker
	if cfg.Redis.URL != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("conexão com Redis")
		}
		defer rdb.Close()
		locker = cache.NewRedisLocker(rdb)
	} else {
		log.Warn().Msg("REDIS_URL vazio; trava de download em memória (instância única)")
		locker = cache.NewMemoryLocker()
	}

	processor := inbound.NewProcessor(inboundRepo, txRunner, cfg.Inbound.Workers, log)
	orchestrator := inbound.NewDownloadOrchestrator(
		branchRepo,
		inbound.GatewayProviderFunc(func(ctx context.Context, b *entity.Branch) (inbound.DistributionGateway, error) {
			gw, err := gateways.ForBranch(ctx, b)
			if err != nil {
				return nil, err
			}
			return gw, nil
		}),
		processor, locker,
		inbound.OrchestratorConfig{MaxPages: cfg.Inbound.MaxPages, LockTTL: cfg.Inbound.LockTTL},
		log,
	)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    16 * 1024 * 1024,
		ReadTimeout:  time.Second * 30,
		WriteTimeout: cfg.SEFAZ.Timeout*time.Duration(retry.Attempts) + 30*time.Second,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI: http://localhost:<port>/docs
	apiDoc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		log.Fatal().Err(err).Msg("carregar especificação OpenAPI")
	}
	app.Use(swagger.New(swagger.Config{
		BasePath:    "/",
		FileContent: []byte(apiDoc),
		Path:        "docs",
		Title:       docs.SwaggerInfo.Title,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name, "sefaz_mode": gateways.Mode()})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		CTe:          emissionSvc,
		Branches:     branchRepo,
		Downloader:   orchestrator,
		Importer:     processor,
		Certificates: certSvc,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de desligamento recebido, encerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("desligamento do servidor")
	}

	log.Info().Msg("aplicação encerrada")
}
