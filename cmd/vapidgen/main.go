// Command vapidgen prints a fresh VAPID key pair in .env format.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kursadbilgin/webpush-gateway/internal/vapid"
)

func main() {
	subject := flag.String("subject", "", "optional VAPID_SUBJECT to include (mailto: or https: URL)")
	flag.Parse()

	keys, err := vapid.GenerateKeyPair()
	if err != nil {
		log.Fatal("failed to generate key pair: ", err)
	}

	if err := writeEnv(os.Stdout, keys, *subject); err != nil {
		log.Fatal("failed to write key pair: ", err)
	}
}

func writeEnv(w io.Writer, keys *vapid.KeyPair, subject string) error {
	if _, err := fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", keys.PublicKeyString(), keys.PrivateKeyString()); err != nil {
		return err
	}
	if subject != "" {
		if _, err := fmt.Fprintf(w, "VAPID_SUBJECT=%s\n", vapid.NormalizeSubject(subject)); err != nil {
			return err
		}
	}
	return nil
}
