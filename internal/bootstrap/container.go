package bootstrap

import (
	"log"

	"gemini-chat-be/internal/config"
	"gemini-chat-be/internal/controller"
	"gemini-chat-be/internal/entity"
	"gemini-chat-be/internal/handler"
	"gemini-chat-be/internal/mapper"
	"gemini-chat-be/internal/pkg/logger"
	"gemini-chat-be/internal/repository/implementation"
	"gemini-chat-be/internal/repository/memory"
	"gemini-chat-be/internal/service"
	"gemini-chat-be/internal/websocket"
	"gemini-chat-be/pkg/store"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type Container struct {
	// Controllers
	SessionController    controller.ISessionController
	HistoryController    controller.IHistoryController
	AttachmentController controller.IAttachmentController
	ChatController       controller.IChatController

	// Services the HTTP layer needs directly
	SessionService service.ISessionService

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	SessionEventsHandler *handler.SessionEventsHandler
	WebSocketHub         *websocket.Hub

	Logger logger.ILogger
}

// Options overrides pieces of the graph, mainly for tests.
type Options struct {
	ProviderFactory service.ProviderFactory
	Logger          logger.ILogger
	Transcript      logger.ILogger
}

func NewContainer(cfg *config.Config, opts Options) *Container {
	// 1. Core Facades
	sysLogger := opts.Logger
	if sysLogger == nil {
		sysLogger = logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	}
	transcript := opts.Transcript
	if transcript == nil {
		transcript = logger.NewIsolatedLogger(cfg.Ai.GenerationLogPath)
	}

	// 2. Event Bus
	// Blocking until ack keeps fragments of one session in publish order.
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		},
		watermillLogger,
	)

	// WebSocket Hub
	wsHub := websocket.NewHub(sysLogger)
	go wsHub.Run()

	publisherService := service.NewPublisherService(cfg.App.EventsTopic, pubSub, sysLogger)
	consumerService := service.NewConsumerService(pubSub, cfg.App.EventsTopic, wsHub, sysLogger)

	// 3. Storage
	defaults := entity.GenerationDefaults{
		ModelName:    cfg.Defaults.ModelName,
		SystemPrompt: cfg.Defaults.SystemPrompt,
		Temperature:  cfg.Defaults.Temperature,
		TopP:         cfg.Defaults.TopP,
		MaxTokens:    cfg.Defaults.MaxTokens,
	}
	conversationMapper := mapper.NewConversationMapper(defaults)
	conversationRepo, err := implementation.NewConversationFileRepository(
		cfg.History.Dir,
		cfg.History.PointerFile,
		conversationMapper,
		sysLogger,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to prepare history directory: %v", err)
	}
	sessionRepo := memory.NewSessionRepository(cfg.App.SessionTTL)

	// 4. Services
	modelClientService := service.NewModelClientService(
		service.ModelClientConfig{
			Provider:            cfg.Ai.LLMProvider,
			GeminiBaseURL:       cfg.Ai.GeminiBaseURL,
			OllamaBaseURL:       cfg.Ai.OllamaBaseURL,
			DefaultSystemPrompt: cfg.Defaults.SystemPrompt,
		},
		opts.ProviderFactory, // nil selects the real providers
		publisherService,
		sysLogger,
	)
	log.Printf("[INFO] Using LLM Provider: %s (default model %s)", cfg.Ai.LLMProvider, cfg.Defaults.ModelName)

	historyService := service.NewHistoryService(conversationRepo, modelClientService, publisherService, sysLogger)
	startupService := service.NewStartupService(historyService, modelClientService, publisherService, sysLogger)
	attachmentService := service.NewAttachmentService(cfg.Ai.MaxAttachmentBytes, publisherService, sysLogger)
	generationService := service.NewGenerationService(
		service.GenerationConfig{Timeout: cfg.Ai.GenerationTimeout},
		historyService,
		modelClientService,
		publisherService,
		sysLogger,
		transcript,
	)
	sessionService := service.NewSessionService(
		service.SessionConfig{
			Defaults: store.Defaults{
				Generation:       defaults,
				APIKey:           cfg.Keys.GoogleGemini,
				AutoloadLastChat: cfg.Defaults.AutoloadLastChat,
			},
			AvailableModels:  cfg.Ai.AvailableModels,
			MaxTokensCeiling: cfg.Ai.MaxTokensCeiling,
		},
		sessionRepo,
		historyService,
		modelClientService,
		startupService,
		attachmentService,
		publisherService,
		sysLogger,
	)

	// 5. Controllers
	return &Container{
		SessionController:    controller.NewSessionController(sessionService),
		HistoryController:    controller.NewHistoryController(historyService),
		AttachmentController: controller.NewAttachmentController(attachmentService),
		ChatController:       controller.NewChatController(generationService, sysLogger),

		SessionService:  sessionService,
		ConsumerService: consumerService,

		SessionEventsHandler: handler.NewSessionEventsHandler(wsHub, sysLogger),
		WebSocketHub:         wsHub,

		Logger: sysLogger,
	}
}
