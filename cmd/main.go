package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/zecanovaes/pizzaria-sapore-bot/handler"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/catalog"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/dialogue"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/integrations/assets"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/integrations/gemini"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/integrations/geocode"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/integrations/openai"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/integrations/outbox"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/integrations/paramstore"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/order"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/prompt"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/repository"
	"github.com/zecanovaes/pizzaria-sapore-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	tableName := mustEnv("TABLE_NAME")
	paramPrefix := mustEnv("PARAM_PREFIX")
	assetBucket := mustEnv("ASSET_BUCKET")
	assetBaseURL := os.Getenv("ASSET_BASE_URL")
	handlerMode := envString("HANDLER_MODE", "webhook")
	llmProvider := envString("LLM_PROVIDER", "openai")
	maxContextItems := envInt("MAX_CONTEXT_ITEMS", 20)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 2000)
	turnTimeout := envDuration("TURN_TIMEOUT_SECONDS", 30, time.Second)
	cacheTTL := envDuration("CACHE_TTL_SECONDS", 300, time.Second)
	staleAfter := envDuration("CONVERSATION_STALE_MINUTES", 180, time.Minute)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	settings, err := paramstore.NewCached(ssmClient, cacheTTL)
	if err != nil {
		fatal("failed to create settings cache", err)
	}

	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), tableName)
	if err != nil {
		fatal("failed to create repository", err)
	}

	assetStore, err := assets.New(awss3.NewFromConfig(cfg), assetBucket, assetBaseURL)
	if err != nil {
		fatal("failed to create asset store", err)
	}

	voice := settings.GetOr(ctx, strings.TrimRight(paramPrefix, "/")+"/config/tts_voice", "nova")
	openaiClient, err := openai.NewClient(ssmClient, paramPrefix, openai.WithVoice(voice))
	if err != nil {
		fatal("failed to create OpenAI client", err)
	}
	speech, err := assets.NewSpeech(openaiClient, assetStore)
	if err != nil {
		fatal("failed to create speech synthesizer", err)
	}

	var llm usecase.LLMClient = openaiClient
	defaultModel := "gpt-4o-mini"
	if llmProvider == "gemini" {
		geminiClient, err := gemini.NewClient(ssmClient, paramPrefix)
		if err != nil {
			fatal("failed to create Gemini client", err)
		}
		llm = geminiClient
		defaultModel = "gemini-2.0-flash"
	}

	geocoder, err := geocode.NewClient(ssmClient, paramPrefix)
	if err != nil {
		fatal("failed to create geocoder", err)
	}

	// ---- Engine ----
	loader, err := prompt.NewStoreLoader(store, settings, paramPrefix)
	if err != nil {
		fatal("failed to create context loader", err)
	}
	contextCache, err := prompt.NewCache(loader, prompt.WithTTL(cacheTTL), prompt.WithCacheLogger(logger))
	if err != nil {
		fatal("failed to create context cache", err)
	}

	resolver, err := catalog.NewResolver(assetStore, catalog.WithSynthesizer(speech), catalog.WithResolverLogger(logger))
	if err != nil {
		fatal("failed to create media resolver", err)
	}

	staging := order.NewStagingArea(order.DefaultStagingTTL, time.Now)
	committer, err := order.NewCommitter(store, staging, order.WithLogger(logger))
	if err != nil {
		fatal("failed to create order committer", err)
	}

	turns, err := usecase.NewTurnService(usecase.Deps{
		Conversations: store,
		Context:       contextCache,
		LLM:           llm,
		Geocoder:      geocoder,
		Settings:      settings,
		Resolver:      resolver,
		Committer:     committer,
		Stager:        order.NewStager(staging, time.Now),
		Machine:       dialogue.NewMachine(dialogue.WithLogger(logger)),
		Assembler:     prompt.NewAssembler(logger),
		Logger:        logger,
	}, usecase.Config{
		ParamPrefix:      paramPrefix,
		DefaultModel:     defaultModel,
		MaxContextItems:  maxContextItems,
		MaxMessageLength: maxMessageLen,
		TurnTimeout:      turnTimeout,
		StaleAfter:       staleAfter,
	})
	if err != nil {
		fatal("failed to create turn service", err)
	}

	// ---- Handler ----
	switch handlerMode {
	case "queue":
		publisher, err := outbox.New(awssqs.NewFromConfig(cfg), mustEnv("OUTBOUND_QUEUE_URL"))
		if err != nil {
			fatal("failed to create outbox publisher", err)
		}
		q, err := handler.NewQueueHandler(turns, publisher, logger)
		if err != nil {
			fatal("failed to create queue handler", err)
		}
		lambda.Start(q.Handle)
	default:
		h, err := handler.NewHandler(turns)
		if err != nil {
			fatal("failed to create handler", err)
		}
		lambda.Start(h.Handle)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return strings.ToLower(v)
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def int, unit time.Duration) time.Duration {
	return time.Duration(envInt(key, def)) * unit
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
