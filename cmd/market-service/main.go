package main

import (
	"log"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/hibiken/asynq"

	"github.com/rajivgeraev/unicircle-api/internal/cache"
	"github.com/rajivgeraev/unicircle-api/internal/config"
	"github.com/rajivgeraev/unicircle-api/internal/db"
	"github.com/rajivgeraev/unicircle-api/internal/email"
	"github.com/rajivgeraev/unicircle-api/internal/notify"
	"github.com/rajivgeraev/unicircle-api/internal/services/auth"
	"github.com/rajivgeraev/unicircle-api/internal/services/chat"
	"github.com/rajivgeraev/unicircle-api/internal/services/cloudinary"
	"github.com/rajivgeraev/unicircle-api/internal/services/favorite"
	"github.com/rajivgeraev/unicircle-api/internal/services/listing"
	"github.com/rajivgeraev/unicircle-api/internal/services/offer"
	"github.com/rajivgeraev/unicircle-api/internal/services/profile"
	"github.com/rajivgeraev/unicircle-api/internal/services/review"
	"github.com/rajivgeraev/unicircle-api/internal/services/transaction"
	"github.com/rajivgeraev/unicircle-api/internal/storage"
	"github.com/rajivgeraev/unicircle-api/internal/tasks"
	"github.com/rajivgeraev/unicircle-api/internal/utils"
	"github.com/rajivgeraev/unicircle-api/internal/websocket"
)

func main() {
	// Загружаем конфигурацию
	cfg := config.LoadConfig()

	// Инициализируем базу данных
	if err := db.InitDB(cfg); err != nil {
		log.Fatalf("❌ Ошибка при инициализации базы данных: %v", err)
	}
	defer db.CloseDB()

	store := storage.NewPostgresStore(db.Pool)

	// WebSocket менеджер
	wsManager := websocket.NewManager()
	defer wsManager.Shutdown()

	// Почтовые уведомления через Redis и asynq; без Redis работаем
	// только с push-уведомлениями
	var taskClient *asynq.Client
	if cfg.RedisURL != "" {
		redisClient, err := cache.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis недоступен, почтовые уведомления отключены: %v", err)
		} else {
			defer cache.DisconnectRedis(redisClient)
			log.Println("✅ Успешное подключение к Redis")

			sender, err := email.NewFileSender(cfg.EmailOutboxDir)
			if err != nil {
				log.Fatalf("❌ Ошибка при создании каталога исходящей почты: %v", err)
			}

			taskClient = tasks.NewClient(redisClient)
			defer taskClient.Close()

			go func() {
				if err := tasks.RunServer(redisClient, tasks.NewProcessor(sender)); err != nil {
					log.Printf("❌ Обработчик фоновых задач остановлен: %v", err)
				}
			}()
		}
	}

	notifier := notify.NewDispatcher(wsManager, taskClient, db.EmailByID)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "UniCircle API",
		ErrorHandler: errorHandler,
	})

	// Добавляем middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	// Создаём сервисы
	authService := auth.NewAuthService(cfg)
	cloudinaryService := cloudinary.NewCloudinaryService(cfg)
	listingService := listing.NewListingService(cfg, cloudinaryService)
	favoriteService := favorite.NewFavoriteService(cfg)
	profileService := profile.NewProfileService(cfg)
	offerService := offer.NewOfferService(cfg, store, notifier)
	transactionService := transaction.NewTransactionService(cfg, store, notifier)
	chatService := chat.NewChatService(cfg, store, notifier)
	reviewService := review.NewReviewService(cfg, store, notifier)

	// Регистрируем маршруты
	authService.SetupRoutes(app)
	cloudinaryService.SetupRoutes(app)
	listingService.SetupPublicRoutes(app)
	listingService.SetupRoutes(app)
	favoriteService.SetupRoutes(app)
	profileService.SetupRoutes(app)
	offerService.SetupRoutes(app)
	transactionService.SetupRoutes(app)
	chatService.SetupRoutes(app)
	reviewService.SetupRoutes(app)

	// WebSocket сервер на отдельном порту
	go func() {
		jwtService := utils.NewJWTService(cfg.JWTSecret)
		http.HandleFunc("/ws", websocket.Handler(wsManager, jwtService))
		log.Println("✅ WebSocket сервер запущен на порту 8081")
		if err := http.ListenAndServe(":8081", nil); err != nil {
			log.Printf("❌ WebSocket сервер остановлен: %v", err)
		}
	}()

	// Запускаем сервер
	log.Println("✅ UniCircle API запущен на порту 8080")
	log.Fatal(app.Listen(":8080"))
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	// Проверяем, является ли ошибка из Fiber
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	// Отправляем ошибку в JSON
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
