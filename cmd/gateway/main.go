package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/confidential-chat-gateway/chat"
	"github.com/ruteri/confidential-chat-gateway/common"
	"github.com/ruteri/confidential-chat-gateway/cryptoutils"
	"github.com/ruteri/confidential-chat-gateway/evm"
	"github.com/ruteri/confidential-chat-gateway/httpserver"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/ruteri/confidential-chat-gateway/keymanager"
	"github.com/ruteri/confidential-chat-gateway/kms"
	"github.com/ruteri/confidential-chat-gateway/metadata"
	"github.com/ruteri/confidential-chat-gateway/storage"
	"github.com/urfave/cli/v2"
)

var flags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:  "metrics-addr",
		Value: "127.0.0.1:8090",
		Usage: "address to listen on for Prometheus metrics",
	},
	&cli.StringFlag{
		Name:  "storage-uri",
		Value: "",
		Usage: "storage backend location URI (file://, s3://, ipfs://, vault://); env/metadata: STORAGE_URI",
	},
	&cli.StringFlag{
		Name:  "key-object",
		Value: "signing-key.enc",
		Usage: "name of the encrypted key object to load at startup",
	},
	&cli.StringFlag{
		Name:  "key-resource",
		Value: "gateway-signing-key",
		Usage: "KMS key resource name used to unseal key blobs",
	},
	&cli.StringFlag{
		Name:  "kms-master-key",
		Value: "",
		Usage: "hex-encoded master key (at least 32 bytes) for the KMS; env/metadata: KMS_MASTER_KEY",
	},
	&cli.StringFlag{
		Name:  "kms-passphrase",
		Value: "",
		Usage: "passphrase to derive the KMS master key from (alternative to kms-master-key)",
	},
	&cli.StringFlag{
		Name:  "kms-salt",
		Value: "confidential-chat-gateway",
		Usage: "salt for passphrase-based master key derivation",
	},
	&cli.StringFlag{
		Name:  "network",
		Value: "",
		Usage: "EVM network to connect to at startup (flare, songbird, flare-coston); env/metadata: EVM_NETWORK",
	},
	&cli.StringFlag{
		Name:  "rpc-url",
		Value: "",
		Usage: "EVM RPC URL override; env/metadata: EVM_RPC_URL",
	},
	&cli.StringFlag{
		Name:  "gemini-url",
		Value: "",
		Usage: "base URL of the generateContent API; env/metadata: GEMINI_URL",
	},
	&cli.StringFlag{
		Name:  "gemini-model",
		Value: "",
		Usage: "generative model name (defaults to the built-in model)",
	},
	&cli.StringFlag{
		Name:  "gemini-api-key",
		Value: "",
		Usage: "API key for the completion endpoint; env/metadata: GEMINI_API_KEY",
	},
	&cli.StringFlag{
		Name:  "metadata-url",
		Value: "",
		Usage: "override the metadata server URL (for testing)",
	},
	&cli.BoolFlag{
		Name:  "log-json",
		Value: false,
		Usage: "log in JSON format",
	},
	&cli.BoolFlag{
		Name:  "log-debug",
		Value: false,
		Usage: "log debug messages",
	},
	&cli.BoolFlag{
		Name:  "log-uid",
		Value: false,
		Usage: "generate a uuid and add to all log messages",
	},
	&cli.StringFlag{
		Name:  "log-service",
		Value: common.PackageName,
		Usage: "add 'service' tag to logs",
	},
	&cli.BoolFlag{
		Name:  "pprof",
		Value: false,
		Usage: "enable pprof debug endpoint",
	},
	&cli.Int64Flag{
		Name:  "drain-seconds",
		Value: 45,
		Usage: "seconds to wait in drain HTTP request",
	},
}

func main() {
	app := &cli.App{
		Name:  "gateway",
		Usage: "Serve the confidential chat gateway API",
		Flags: flags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// resolve returns the flag value if set, else the environment/metadata value.
func resolve(cCtx *cli.Context, flagName string, meta *metadata.Resolver, metaKey string) string {
	if v := cCtx.String(flagName); v != "" {
		return v
	}
	return meta.Get(metaKey)
}

func run(cCtx *cli.Context) error {
	logJSON := cCtx.Bool("log-json")
	logDebug := cCtx.Bool("log-debug")
	logUID := cCtx.Bool("log-uid")
	logService := cCtx.String("log-service")
	drainDuration := time.Duration(cCtx.Int64("drain-seconds")) * time.Second

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}

	meta := metadata.NewResolver(cCtx.String("metadata-url"))

	// KMS master key: explicit hex key or passphrase derivation.
	masterKeyHex := resolve(cCtx, "kms-master-key", meta, "KMS_MASTER_KEY")
	passphrase := cCtx.String("kms-passphrase")

	var masterKey []byte
	switch {
	case masterKeyHex != "":
		key, err := hex.DecodeString(masterKeyHex)
		if err != nil {
			logger.Error("Invalid kms-master-key - must be hex encoded", "err", err)
			return fmt.Errorf("invalid kms-master-key: %v", err)
		}
		masterKey = key
	case passphrase != "":
		masterKey = cryptoutils.DeriveMasterKey([]byte(passphrase), []byte(cCtx.String("kms-salt")))
	default:
		logger.Error("Either kms-master-key or kms-passphrase is required")
		return errors.New("either kms-master-key or kms-passphrase is required")
	}

	simpleKMS, err := kms.NewSimpleKMS(masterKey)
	if err != nil {
		logger.Error("Failed to create KMS", "err", err)
		return err
	}

	// Storage backend
	storageURI := resolve(cCtx, "storage-uri", meta, "STORAGE_URI")
	if storageURI == "" {
		logger.Error("storage-uri is required (flag, environment, or metadata)")
		return errors.New("storage-uri is required")
	}
	location, err := interfaces.NewStorageBackendLocation(storageURI)
	if err != nil {
		logger.Error("Invalid storage-uri", "err", err)
		return err
	}
	backend, err := storage.NewStorageBackendFactory(logger).StorageBackendFor(location)
	if err != nil {
		logger.Error("Failed to create storage backend", "err", err)
		return err
	}
	logger.Info("Storage backend ready", "backend", backend.Name())

	keys := keymanager.New(backend, simpleKMS, cCtx.String("key-resource"), logger)

	// Load the signing key up front. A missing object is not fatal: the
	// operator may seal and load it later through the API.
	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	keyObject := interfaces.KeyObjectName(cCtx.String("key-object"))
	if address, err := keys.Load(startupCtx, keyObject); err != nil {
		logger.Warn("Signing key not loaded at startup", "object", keyObject.String(), "err", err)
	} else {
		logger.Info("Signing key active", "address", address.Hex())
	}
	cancel()

	// EVM connection
	evmClient := evm.NewClient(logger)
	defer evmClient.Close()

	network := resolve(cCtx, "network", meta, "EVM_NETWORK")
	rpcURL := resolve(cCtx, "rpc-url", meta, "EVM_RPC_URL")
	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if status, err := evmClient.Connect(connectCtx, network, rpcURL); err != nil {
		logger.Warn("EVM connection failed at startup, reconnect via API", "err", err)
	} else {
		logger.Info("EVM connection established",
			"network", status.Name, "chain_id", status.ChainID.String())
	}
	cancel()

	// Chat relay
	geminiURL := resolve(cCtx, "gemini-url", meta, "GEMINI_URL")
	if geminiURL == "" {
		geminiURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	geminiAPIKey := resolve(cCtx, "gemini-api-key", meta, "GEMINI_API_KEY")
	if geminiAPIKey == "" {
		logger.Error("gemini-api-key is required (flag, environment, or metadata)")
		return errors.New("gemini-api-key is required")
	}
	completer := chat.NewGeminiClient(geminiURL, cCtx.String("gemini-model"), geminiAPIKey, logger)
	relay := chat.NewRelay(completer, logger)

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String("listen-addr"),
		MetricsAddr:              cCtx.String("metrics-addr"),
		Log:                      logger,
		EnablePprof:              cCtx.Bool("pprof"),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}

	handler := httpserver.NewHandler(relay, evmClient, keys, logger)
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}
