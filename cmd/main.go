package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"estate_wizard_v1_202609/internal/controller"
	"estate_wizard_v1_202609/internal/model"
	"estate_wizard_v1_202609/internal/repository"
	"estate_wizard_v1_202609/internal/router"
	"estate_wizard_v1_202609/internal/service"
	"estate_wizard_v1_202609/internal/task"
	"estate_wizard_v1_202609/pkg/database"
)

func main() {
	// 0. 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，使用系统环境变量")
	}

	// 1. 初始化数据库
	db := initDatabase()

	// 2. 初始化依赖
	deps := initDependencies(db)

	// 3. 启动定时任务
	initTasks(deps)

	// 4. 初始化路由
	r := router.SetupRouter(deps.Controllers)

	// 5. 启动服务
	startServer(r)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Listing repository.ListingRepository
	User    repository.UserRepository
	KV      repository.KVStore
}

// Services 服务集合
type Services struct {
	Profile *service.ProfileService
	Storage service.StorageProvider
	Wizard  *service.WizardService
	Submit  *service.SubmitService
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase() *gorm.DB {
	driver := getEnv("DB_DRIVER", "sqlite")
	dsn := getEnv("DB_DSN", "estate_wizard.db")
	if driver == "postgres" && dsn == "estate_wizard.db" {
		dsn = database.DSNFromEnv(
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_USER", "estate"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "estate_wizard"),
			getEnv("DB_PORT", "5432"),
		)
	}

	return database.InitDB(driver, dsn,
		&model.User{},
		&model.Listing{},
		&model.KVEntry{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB) *Dependencies {
	// -------- Repo 层 --------
	repos := &Repositories{
		Listing: repository.NewListingRepository(db),
		User:    repository.NewUserRepository(db),
		KV:      repository.NewGormKVStore(db),
	}

	// -------- 基础服务 --------
	storage := initStorageProvider()
	profile := service.NewProfileService(getEnv("PROFILE_API_URL", ""))

	// -------- 业务服务 --------
	wizard := service.NewWizardService(service.WizardConfig{
		MaxImages:     service.DefaultMaxImages,
		MaxImageBytes: service.DefaultMaxImageBytes,
	}, repos.KV, profile)

	submit := service.NewSubmitService(wizard, storage, repos.Listing, service.SubmitConfig{})

	services := &Services{
		Profile: profile,
		Storage: storage,
		Wizard:  wizard,
		Submit:  submit,
	}

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		Wizard: controller.NewWizardController(wizard, submit),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
	}
}

// initStorageProvider 初始化对象存储
func initStorageProvider() service.StorageProvider {
	storage, err := service.NewStorageProvider(&service.StorageConfig{
		Provider:  getEnv("STORAGE_PROVIDER", "local"),
		Bucket:    getEnv("AWS_BUCKET", ""),
		Region:    getEnv("AWS_REGION", ""),
		AccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		Endpoint:  getEnv("STORAGE_ENDPOINT", ""),
		CDNDomain: getEnv("AWS_CDN_DOMAIN", ""),
		BasePath:  getEnv("STORAGE_BASE_PATH", ""),
	})
	if err != nil {
		log.Fatalf("存储服务初始化失败: %v", err)
	}
	return storage
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) {
	cleanupTask := task.NewWizardCleanupTask(
		deps.Services.Wizard,
		deps.Services.Submit,
		deps.Services.Storage,
	)
	cleanupTask.Start()

	log.Println("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r http.Handler) {
	port := getEnv("SERVER_PORT", "8080")

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动于 :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务关闭异常: %v", err)
	}
	log.Println("服务已退出")
}

// getEnv 读取环境变量，空值回退默认
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
