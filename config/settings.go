package config

import (
	"os"
	"strconv"
	"strings"

	"go.mau.fi/whatsmeow/proto/waCompanionReg"
)

var (
	AppVersion             = "v1.2.0"
	AppPort                = "3000"
	AppDebug               = false
	AppOs                  = "WaChannel"
	AppPlatform            = waCompanionReg.DeviceProps_PlatformType(1)
	AppBasicAuthCredential []string
	AppServerID            string

	PathStorages = "storages"

	DBDriver   = "sqlite"
	DBName     = "wachannel"
	DBHost     = "localhost"
	DBPort     = "5432"
	DBUser     = "postgres"
	DBPassword = ""

	WhatsappDomainSuffix = "@s.whatsapp.net"
	WhatsappLogLevel     = "ERROR"
	WhatsappAutoMarkRead = false // Mark incoming messages as read on the linked phone

	// Delay before a dropped session attempts to relink.
	ReconnectDelaySeconds = 3

	MessageWorkerPoolSize  = 20
	MessageWorkerQueueSize = 1000
)

func init() {
	if v := strings.TrimSpace(os.Getenv("MESSAGE_WORKER_POOL_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			MessageWorkerPoolSize = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("MESSAGE_WORKER_QUEUE_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			MessageWorkerQueueSize = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("RECONNECT_DELAY_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			ReconnectDelaySeconds = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("WHATSAPP_AUTO_MARK_READ")); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			WhatsappAutoMarkRead = true
		case "0", "false", "no", "off":
			WhatsappAutoMarkRead = false
		}
	}
}
