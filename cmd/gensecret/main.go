// Gensecret prints random hex key suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const SecretKeyBytesLen = 32

func main() {
	size := pflag.IntP("bytes", "b", SecretKeyBytesLen, "Key length in bytes")
	pflag.Parse()

	if *size < 16 {
		fmt.Fprintln(os.Stderr, "key must be at least 16 bytes long")
		os.Exit(1)
	}

	b := make([]byte, *size)
	if _, err := rand.Read(b); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(hex.EncodeToString(b))
}
