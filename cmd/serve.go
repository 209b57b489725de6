package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	ocr "github.com/wikimedia/wikimedia-ocr"
	"github.com/wikimedia/wikimedia-ocr/cache"
	"github.com/wikimedia/wikimedia-ocr/cache/postgres"
	"github.com/wikimedia/wikimedia-ocr/config"
	"github.com/wikimedia/wikimedia-ocr/engine"
	"github.com/wikimedia/wikimedia-ocr/images"
	"github.com/wikimedia/wikimedia-ocr/logging"
	"github.com/wikimedia/wikimedia-ocr/messages"
	"github.com/wikimedia/wikimedia-ocr/models"
	"github.com/wikimedia/wikimedia-ocr/ocrerror"
)

var serveCMD = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCR API server",
	Long:  "Start the REST API server that runs recognition requests against the configured engines.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		service, err := buildService(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		ginEngine := gin.Default()
		// The API is consumed by the Wikisource extension wherever it is
		// installed.
		ginEngine.Use(func(ctx *gin.Context) {
			ctx.Header("Access-Control-Allow-Origin", "*")
		})

		ginEngine.GET("/api", func(ctx *gin.Context) {
			req := requestFromQuery(ctx)
			result, err := service.Run(ctx.Request.Context(), req)
			if err != nil {
				writeError(ctx, err)
				return
			}
			response := gin.H{
				"engine": req.Engine,
				"image":  req.Image,
				"langs":  req.Langs,
				"text":   result.Text,
			}
			if len(result.Warnings) > 0 {
				response["warnings"] = result.Warnings
			}
			ctx.JSON(http.StatusOK, response)
		})

		ginEngine.GET("/api/available_langs", func(ctx *gin.Context) {
			engineID := ctx.DefaultQuery("engine", "google")
			_, titles, err := service.ValidModels(engineID, true)
			if err != nil {
				writeError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"engine":          engineID,
				"available_langs": titles,
			})
		})

		ginEngine.GET("/api/tesseract/available_psms", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{
				"available_psms": service.AvailablePSMs(ctx.DefaultQuery("uselang", "en")),
			})
		})

		ginEngine.GET("/api/transkribus/available_line_ids", func(ctx *gin.Context) {
			lineModels, err := service.LineDetectionModels()
			if err != nil {
				writeError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"available_line_ids": lineModels,
			})
		})

		host, _ := cmd.Flags().GetString("host")
		port, _ := cmd.Flags().GetUint("port")
		if err := ginEngine.Run(fmt.Sprintf("%s:%d", host, port)); err != nil {
			return errors.Join(errors.New("failed to run HTTP server"), err)
		}
		return nil
	},
}

func init() {
	serveCMD.Flags().String("host", "0.0.0.0", "Host the server will be listening on")
	serveCMD.Flags().Uint("port", 8000, "Port the server will be listening on")
}

func buildService(ctx context.Context, cfg *config.Config) (*ocr.Service, error) {
	catalog := models.NewCatalog()
	msgs := messages.New()
	resolverConfig := images.DefaultResolverConfig()
	resolverConfig.Hosts = cfg.ImageHosts
	resolver := images.NewResolver(resolverConfig)

	googleConfig := engine.DefaultGoogleConfig()
	googleConfig.Key = cfg.GoogleKey
	googleConfig.Catalog = catalog
	googleConfig.Resolver = resolver
	googleConfig.Messages = msgs

	tesseractConfig := engine.DefaultTesseractConfig()
	tesseractConfig.Binary = cfg.TesseractBinary
	tesseractConfig.Catalog = catalog
	tesseractConfig.Resolver = resolver
	tesseractConfig.Messages = msgs

	krakenConfig := engine.DefaultKrakenConfig()
	krakenConfig.Binary = cfg.KrakenBinary
	krakenConfig.Catalog = catalog
	krakenConfig.Resolver = resolver
	krakenConfig.Messages = msgs

	transkribusClientConfig := engine.DefaultTranskribusClientConfig()
	transkribusClientConfig.Username = cfg.TranskribusUsername
	transkribusClientConfig.Password = cfg.TranskribusPassword

	transkribusConfig := engine.DefaultTranskribusConfig()
	transkribusConfig.Client = engine.NewTranskribusClient(transkribusClientConfig)
	transkribusConfig.Catalog = catalog
	transkribusConfig.Resolver = resolver
	transkribusConfig.Messages = msgs

	registry := engine.NewRegistry(
		engine.NewGoogle(googleConfig),
		engine.NewTesseract(tesseractConfig),
		engine.NewKraken(krakenConfig),
		engine.NewTranskribus(transkribusConfig),
	)

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	serviceConfig := ocr.DefaultServiceConfig()
	serviceConfig.Registry = registry
	serviceConfig.Catalog = catalog
	serviceConfig.Cache = cache.New(store)
	serviceConfig.Messages = msgs
	serviceConfig.Logger = logging.NewLogger("ocr")
	serviceConfig.DefaultEngine = cfg.DefaultEngine
	serviceConfig.CacheTTL = cfg.CacheTTL
	serviceConfig.RunTimeout = cfg.RunTimeout
	return ocr.NewService(serviceConfig), nil
}

func buildStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, errors.Join(errors.New("invalid redis URL"), err)
		}
		return cache.NewRedis(redis.NewClient(redisOptions), ""), nil

	case config.CacheBackendPostgres:
		pgxConfig, err := pgx.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Join(errors.New("invalid database URL"), err)
		}
		db := stdlib.OpenDB(*pgxConfig)
		storage := postgres.New(db)
		if err := storage.Install(ctx); err != nil {
			return nil, err
		}
		return storage, nil

	default:
		return cache.NewMemory(), nil
	}
}

func requestFromQuery(ctx *gin.Context) ocr.Request {
	langs := ctx.QueryArray("langs[]")
	if lang := ctx.Query("lang"); lang != "" {
		langs = append([]string{lang}, langs...)
	}

	var crop *images.Crop
	if ctx.Query("crop[width]") != "" {
		crop = &images.Crop{
			X:      queryInt(ctx, "crop[x]", 0),
			Y:      queryInt(ctx, "crop[y]", 0),
			Width:  queryInt(ctx, "crop[width]", 0),
			Height: queryInt(ctx, "crop[height]", 0),
		}
	}

	return ocr.Request{
		Image:  ctx.Query("image"),
		Engine: ctx.DefaultQuery("engine", ""),
		Langs:  langs,
		Crop:   crop,
		PSM:    queryInt(ctx, "psm", engine.DefaultPSM),
		LineID: queryInt(ctx, "line_id", 0),
		Policy: models.WarnOnInvalid,
		Locale: ctx.DefaultQuery("uselang", "en"),
	}
}

func queryInt(ctx *gin.Context, key string, defaultValue int) int {
	value := ctx.Query(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func writeError(ctx *gin.Context, err error) {
	var recErr *ocrerror.Error
	if errors.As(err, &recErr) {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":   recErr.Code,
				"params": recErr.Params,
			},
		})
		return
	}
	ctx.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"message": err.Error()},
	})
}
