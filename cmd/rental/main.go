package main

import (
	"net/http"

	"item-rental/pkg/catalog"
	"item-rental/pkg/clock"
	"item-rental/pkg/config"
	"item-rental/pkg/database"
	"item-rental/pkg/logging"
	"item-rental/pkg/models"
	"item-rental/pkg/rating"
	"item-rental/pkg/reservation"
	"item-rental/pkg/users"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	db           *gorm.DB
	cfg          config.Config
	logger       *zap.Logger
	clk          clock.Clock
	ratings      *rating.Service
	items        *catalog.Service
	reservations *reservation.Service
	accounts     *users.Service
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		panic(err)
	}

	logger, err = logging.New(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting rental service", zap.String("env", cfg.Env))

	conn, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	initServices(conn, clock.NewSystem())

	if cfg.SeedData {
		if err := seedTestData(); err != nil {
			logger.Fatal("seeding failed", zap.Error(err))
		}
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	server := setupRouter()

	logger.Info("rental service listening", zap.String("port", cfg.HTTPPort))
	if err := server.Run(":" + cfg.HTTPPort); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initServices(conn *gorm.DB, c clock.Clock) {
	db = conn
	clk = c
	ratings = rating.NewService(db)
	items = catalog.NewService(db, ratings, logger.Named("catalog"))
	reservations = reservation.NewService(db, ratings, clk, logger.Named("reservation"),
		reservation.WithLoanPeriod(cfg.LoanPeriod))
	accounts = users.NewService(db, logger.Named("users"))
}

func setupRouter() *gin.Engine {
	server := gin.New()
	server.Use(logging.GinLogger(logger), gin.Recovery())

	server.GET("/manage/health", healthCheck)

	api := server.Group("/api/v1", resolvePrincipal)

	api.GET("/categories", getCategories)
	api.POST("/categories", requireAdmin, createCategory)

	api.GET("/items", getItems)
	api.GET("/items/search", searchItems)
	api.GET("/items/top-rated", getTopRatedItems)
	api.GET("/items/:itemUid", getItem)
	api.POST("/items", requireAdmin, createItem)
	api.PUT("/items/:itemUid", requireAdmin, updateItem)
	api.DELETE("/items/:itemUid", requireAdmin, deleteItem)
	api.POST("/items/:itemUid/reserve", reserveItem)
	api.POST("/items/:itemUid/rent", requireUser, rentItem)

	api.GET("/reservations", requireAdmin, getReservations)
	api.GET("/reservations/my", requireUser, getMyReservations)
	api.GET("/reservations/overdue", requireAdmin, getOverdueReservations)
	api.GET("/reservations/:reservationUid", requireUser, getReservation)
	api.POST("/reservations/:reservationUid/decision", requireAdmin, decideReservation)
	api.GET("/reservations/:reservationUid/return", requireUser, getReturnForm)
	api.POST("/reservations/:reservationUid/return", requireUser, returnReservation)
	api.POST("/reservations/:reservationUid/return/decision", requireAdmin, decideReturn)
	api.DELETE("/reservations/:reservationUid", requireAdmin, deleteReservation)

	api.POST("/users/register", registerUser)
	api.PUT("/profile", requireUser, updateProfile)
	api.PUT("/profile/password", requireUser, changePassword)
	api.GET("/users", requireAdmin, getUsers)
	api.PUT("/users/:id/role", requireAdmin, updateUserRole)
	api.POST("/users/:id/block", requireAdmin, toggleUserBlock)
	api.DELETE("/users/:id", requireAdmin, deleteUser)

	return server
}

func seedTestData() error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		logger.Info("database already populated, skipping seed")
		return nil
	}

	admin, err := accounts.Register(cfg.SeedAdminEmail, "admin", cfg.SeedAdminPassword)
	if err != nil {
		return err
	}
	admin.Roles = admin.Roles.With(models.RoleAdmin)
	if err := db.Model(&admin).Update("roles", admin.Roles).Error; err != nil {
		return err
	}
	if _, err := accounts.Register("user@example.com", "user", "user1234"); err != nil {
		return err
	}

	seed := map[string][]catalog.ItemInput{
		"Tools": {
			{Title: "Cordless drill", Description: "18V with two batteries", Quantity: 2},
			{Title: "Ladder", Description: "Aluminium, 3 m", Quantity: 1},
		},
		"Outdoor": {
			{Title: "Camping tent", Description: "Four person dome tent", Quantity: 3},
			{Title: "Kayak", Description: "Single seat, paddle included", Quantity: 1},
		},
	}
	for title, inputs := range seed {
		category, err := items.CreateCategory(title)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			in.CategoryID = category.ID
			if _, err := items.Create(in); err != nil {
				return err
			}
		}
	}
	logger.Info("test data seeded")
	return nil
}

func healthCheck(ctx *gin.Context) {
	if err := database.Ping(db); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":  "UP",
		"details": "Host localhost:" + cfg.HTTPPort + " is active",
	})
}
