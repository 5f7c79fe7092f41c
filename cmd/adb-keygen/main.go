// Command adb-keygen manages the client's persistent RSA identity.
//
// Usage:
//
//	adb-keygen [flags]
//
// Flags:
//
//	-dir string     Key storage directory (default: config storage dir)
//	-label string   Label embedded in the public key (default: wakecast@tv)
//	-show           Print the daemon-format public key and exit
//	-fingerprint    Print the public key fingerprint and exit
//
// Without -show or -fingerprint, the tool loads the existing key pair
// (generating one if absent) and reports where it lives. An existing
// key is never replaced; delete the adbkey file first to rotate.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wakecast/adb-go/pkg/config"
	"github.com/wakecast/adb-go/pkg/keys"
)

var (
	dir         = flag.String("dir", "", "Key storage directory (default: config storage dir)")
	label       = flag.String("label", "", "Label embedded in the public key")
	show        = flag.Bool("show", false, "Print the daemon-format public key and exit")
	fingerprint = flag.Bool("fingerprint", false, "Print the public key fingerprint and exit")
)

func main() {
	flag.Parse()

	storageDir := *dir
	if storageDir == "" {
		storageDir = config.Default().StorageDir
	}

	keyPair, err := keys.LoadOrGenerate(storageDir, *label)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *show:
		os.Stdout.Write(keyPair.PublicBlob)
		fmt.Println()

	case *fingerprint:
		sum := sha256.Sum256(keyPair.Private.PublicKey.N.Bytes())
		fmt.Printf("SHA256:%s\n", hex.EncodeToString(sum[:]))

	default:
		fmt.Printf("Key pair ready in %s\n", storageDir)
		fmt.Printf("  private: %s\n", filepath.Join(storageDir, "adbkey"))
		fmt.Printf("  public:  %s (%d bytes)\n", filepath.Join(storageDir, "adbkey.pub"), len(keyPair.PublicBlob))
	}
}
