package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	globalConfig "github.com/hctoledo/wachannel/config"
	"github.com/hctoledo/wachannel/core/database"
	domainChatStorage "github.com/hctoledo/wachannel/domains/chatstorage"
	domainSession "github.com/hctoledo/wachannel/domains/session"
	"github.com/hctoledo/wachannel/engine"
	chatstorageRepo "github.com/hctoledo/wachannel/infrastructure/chatstorage"
	"github.com/hctoledo/wachannel/infrastructure/whatsapp"
	"github.com/hctoledo/wachannel/pkg/msgworker"
	"github.com/hctoledo/wachannel/pkg/utils"
	"github.com/hctoledo/wachannel/usecase"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

var (
	appDB *gorm.DB

	storageRepo domainChatStorage.IChatStorageRepository
	linkFactory *whatsapp.LinkFactory
	registry    *engine.Registry
	controller  *engine.Controller
	dispatcher  *engine.Dispatcher

	sessionUsecase domainSession.ISessionUsecase

	appCtx    context.Context
	appCancel context.CancelFunc
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Short: "Multi-tenant WhatsApp channel API",
	Long: `Expose WhatsApp as a messaging channel over an HTTP API. Each session
is an independent linked device with its own credentials, conversation
history and keyword automations.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Initialize flags first, before any subcommands are added
	initFlags()

	// Then initialize other components
	cobra.OnInitialize(initEnvConfig, initApp)
}

// initEnvConfig loads configuration from environment variables
func initEnvConfig() {
	// Application settings
	if envPort := viper.GetString("app_port"); envPort != "" {
		globalConfig.AppPort = envPort
	}
	if envDebug := viper.GetBool("app_debug"); envDebug {
		globalConfig.AppDebug = envDebug
	}
	if envOs := viper.GetString("app_os"); envOs != "" {
		globalConfig.AppOs = envOs
	}
	envBasicAuth := viper.GetString("app_basic_auth")
	if envBasicAuth == "" {
		envBasicAuth = os.Getenv("APP_BASIC_AUTH")
	}
	if envBasicAuth != "" {
		credential := strings.Split(envBasicAuth, ",")
		globalConfig.AppBasicAuthCredential = credential
	}

	// Database settings
	if envDBDriver := viper.GetString("db_driver"); envDBDriver != "" {
		globalConfig.DBDriver = envDBDriver
	}
	if envDBName := viper.GetString("db_name"); envDBName != "" {
		globalConfig.DBName = envDBName
	}
	if envDBHost := viper.GetString("db_host"); envDBHost != "" {
		globalConfig.DBHost = envDBHost
	}
	if envDBPort := viper.GetString("db_port"); envDBPort != "" {
		globalConfig.DBPort = envDBPort
	}
	if envDBUser := viper.GetString("db_user"); envDBUser != "" {
		globalConfig.DBUser = envDBUser
	}
	if envDBPassword := viper.GetString("db_password"); envDBPassword != "" {
		globalConfig.DBPassword = envDBPassword
	}

	// WhatsApp settings
	if viper.IsSet("whatsapp_auto_mark_read") {
		globalConfig.WhatsappAutoMarkRead = viper.GetBool("whatsapp_auto_mark_read")
	}
	if envSuffix := viper.GetString("whatsapp_domain_suffix"); envSuffix != "" {
		globalConfig.WhatsappDomainSuffix = envSuffix
	}
}

func initFlags() {
	// Application flags
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppPort,
		"port", "p",
		globalConfig.AppPort,
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&globalConfig.AppDebug,
		"debug", "d",
		globalConfig.AppDebug,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppOs,
		"os", "",
		globalConfig.AppOs,
		`os name --os <string> | example: --os="Chrome"`,
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&globalConfig.AppBasicAuthCredential,
		"basic-auth", "b",
		globalConfig.AppBasicAuthCredential,
		"basic auth credential | -b=yourUsername:yourPassword",
	)

	// Database flags
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.DBDriver,
		"db-driver", "",
		globalConfig.DBDriver,
		`database driver for conversation storage --db-driver <string> | example: --db-driver="postgres" (default: sqlite)`,
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.DBName,
		"db-name", "",
		globalConfig.DBName,
		`database name for the postgres driver --db-name <string> | example: --db-name="wachannel"`,
	)

	// WhatsApp flags
	rootCmd.PersistentFlags().BoolVarP(
		&globalConfig.WhatsappAutoMarkRead,
		"auto-mark-read", "",
		globalConfig.WhatsappAutoMarkRead,
		`auto mark incoming messages as read --auto-mark-read <true/false> | example: --auto-mark-read=true`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&globalConfig.ReconnectDelaySeconds,
		"reconnect-delay", "",
		globalConfig.ReconnectDelaySeconds,
		`seconds to wait before relinking a dropped session --reconnect-delay <number> | example: --reconnect-delay=5`,
	)

	// Message Worker Pool flags
	rootCmd.PersistentFlags().IntVarP(
		&globalConfig.MessageWorkerPoolSize,
		"message-workers", "",
		globalConfig.MessageWorkerPoolSize,
		`number of concurrent message workers --message-workers <number> | example: --message-workers=30 (default: 20)`,
	)
	rootCmd.PersistentFlags().IntVarP(
		&globalConfig.MessageWorkerQueueSize,
		"message-queue-size", "",
		globalConfig.MessageWorkerQueueSize,
		`queue size per message worker --message-queue-size <number> | example: --message-queue-size=1500 (default: 1000)`,
	)
}

func initApp() {
	if globalConfig.AppDebug {
		globalConfig.WhatsappLogLevel = "DEBUG"
		logrus.SetLevel(logrus.DebugLevel)
	}

	//preparing folder if not exist
	if err := utils.CreateFolder(globalConfig.PathStorages); err != nil {
		logrus.Errorln(err)
	}

	globalConfig.AppServerID = utils.GetPersistentServerID(globalConfig.AppServerID, globalConfig.PathStorages)
	logrus.Infof("[APP] Server ID: %s", globalConfig.AppServerID)

	var err error
	appDB, err = database.NewDatabase()
	if err != nil {
		logrus.Fatalf("failed to open database: %v", err)
	}

	storageRepo = chatstorageRepo.NewGormRepository(appDB)
	if err := storageRepo.Init(); err != nil {
		logrus.Fatalf("failed to init chat storage: %v", err)
	}

	appCtx, appCancel = context.WithCancel(context.Background())

	linkFactory = whatsapp.NewLinkFactory(globalConfig.PathStorages, globalConfig.WhatsappLogLevel)
	registry = engine.NewRegistry()

	pool := msgworker.GetGlobalPool()

	automation := engine.NewAutomationEngine(storageRepo)
	dispatcher = engine.NewDispatcher(registry, globalConfig.WhatsappDomainSuffix)
	ingestor := engine.NewIngestor(storageRepo, automation, dispatcher)
	controller = engine.NewController(
		storageRepo,
		registry,
		linkFactory,
		pool,
		ingestor,
		time.Duration(globalConfig.ReconnectDelaySeconds)*time.Second,
	)

	sessionUsecase = usecase.NewSessionService(controller, dispatcher, storageRepo)

	// Relink sessions that were connected before the last shutdown.
	go controller.Resume(appCtx)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of the worker pool and database connections.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if appCancel != nil {
		appCancel()
	}

	msgworker.StopGlobalPool()

	if appDB != nil {
		if sqlDB, err := appDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logrus.Errorf("[APP] Error closing database: %v", err)
			}
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
