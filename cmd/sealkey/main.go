// Command sealkey seals a plaintext EVM private key for the gateway. The
// sealed blob is written to the configured storage backend (or stdout) so
// the gateway can fetch and decrypt it at startup.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ruteri/confidential-chat-gateway/common"
	"github.com/ruteri/confidential-chat-gateway/cryptoutils"
	"github.com/ruteri/confidential-chat-gateway/interfaces"
	"github.com/ruteri/confidential-chat-gateway/kms"
	"github.com/ruteri/confidential-chat-gateway/storage"
	"github.com/urfave/cli/v2"
)

var kmsFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "kms-master-key",
		Value: "",
		Usage: "hex-encoded master key (at least 32 bytes), must match the gateway's",
	},
	&cli.StringFlag{
		Name:  "kms-passphrase",
		Value: "",
		Usage: "passphrase to derive the master key from (alternative to kms-master-key)",
	},
	&cli.StringFlag{
		Name:  "kms-salt",
		Value: "confidential-chat-gateway",
		Usage: "salt for passphrase-based master key derivation",
	},
	&cli.StringFlag{
		Name:  "key-resource",
		Value: "gateway-signing-key",
		Usage: "KMS key resource name the blob is sealed against",
	},
}

func main() {
	app := &cli.App{
		Name:  "sealkey",
		Usage: "Seal EVM private keys for the chat gateway",
		Commands: []*cli.Command{
			{
				Name:  "seal",
				Usage: "seal a private key and store it in a backend",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "key-file",
						Usage:    "file holding the hex-encoded private key ('-' for stdin)",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "storage-uri",
						Usage: "storage backend location URI; omit to write the blob to stdout as hex",
					},
					&cli.StringFlag{
						Name:  "key-object",
						Value: "signing-key.enc",
						Usage: "object name to store the sealed blob under",
					},
				}, kmsFlags...),
				Action: runSeal,
			},
			{
				Name:   "print-pubkey",
				Usage:  "print the PEM sealing public key for the key resource",
				Flags:  kmsFlags,
				Action: runPrintPubkey,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func kmsFromFlags(cCtx *cli.Context) (*kms.SimpleKMS, error) {
	masterKeyHex := cCtx.String("kms-master-key")
	passphrase := cCtx.String("kms-passphrase")

	var masterKey []byte
	switch {
	case masterKeyHex != "":
		key, err := hex.DecodeString(masterKeyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid kms-master-key: %v", err)
		}
		masterKey = key
	case passphrase != "":
		masterKey = cryptoutils.DeriveMasterKey([]byte(passphrase), []byte(cCtx.String("kms-salt")))
	default:
		return nil, errors.New("either kms-master-key or kms-passphrase is required")
	}

	return kms.NewSimpleKMS(masterKey)
}

func runSeal(cCtx *cli.Context) error {
	simpleKMS, err := kmsFromFlags(cCtx)
	if err != nil {
		return err
	}

	keyFile := cCtx.String("key-file")
	var raw []byte
	if keyFile == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(keyFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read key material: %w", err)
	}

	plaintext := []byte(strings.TrimSpace(string(raw)))
	if len(plaintext) == 0 {
		return errors.New("key file is empty")
	}

	blob, err := simpleKMS.Encrypt(cCtx.String("key-resource"), plaintext)
	if err != nil {
		return fmt.Errorf("failed to seal key: %w", err)
	}

	storageURI := cCtx.String("storage-uri")
	if storageURI == "" {
		fmt.Println(hex.EncodeToString(blob))
		return nil
	}

	location, err := interfaces.NewStorageBackendLocation(storageURI)
	if err != nil {
		return err
	}

	logger := common.SetupLogger(&common.LoggingOpts{Service: "sealkey", Version: common.Version})
	backend, err := storage.NewStorageBackendFactory(logger).StorageBackendFor(location)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := interfaces.KeyObjectName(cCtx.String("key-object"))
	if err := backend.Store(ctx, name, blob); err != nil {
		return fmt.Errorf("failed to store sealed blob: %w", err)
	}

	fmt.Printf("sealed blob stored as %s in %s\n", name, backend.Name())
	return nil
}

func runPrintPubkey(cCtx *cli.Context) error {
	simpleKMS, err := kmsFromFlags(cCtx)
	if err != nil {
		return err
	}

	pubPEM, err := simpleKMS.SealingPublicKey(cCtx.String("key-resource"))
	if err != nil {
		return err
	}

	fmt.Print(string(pubPEM))
	return nil
}
