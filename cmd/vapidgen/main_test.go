package main

import (
	"bytes"
	"testing"

	"github.com/joho/godotenv"
	"github.com/kursadbilgin/webpush-gateway/internal/vapid"
)

func TestWriteEnvRoundTrips(t *testing.T) {
	t.Parallel()

	keys, err := vapid.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	var buf bytes.Buffer
	if err := writeEnv(&buf, keys, "ops@solo.chat"); err != nil {
		t.Fatalf("writeEnv() error = %v", err)
	}

	values, err := godotenv.Unmarshal(buf.String())
	if err != nil {
		t.Fatalf("godotenv.Unmarshal() error = %v", err)
	}

	parsed, err := vapid.ParseKeyPair(values["VAPID_PUBLIC_KEY"], values["VAPID_PRIVATE_KEY"])
	if err != nil {
		t.Fatalf("ParseKeyPair() error = %v", err)
	}
	if parsed.PublicKeyString() != keys.PublicKeyString() {
		t.Fatalf("public key = %s, want %s", parsed.PublicKeyString(), keys.PublicKeyString())
	}
	if values["VAPID_SUBJECT"] != "mailto:ops@solo.chat" {
		t.Fatalf("VAPID_SUBJECT = %q", values["VAPID_SUBJECT"])
	}
}

func TestWriteEnvWithoutSubject(t *testing.T) {
	t.Parallel()

	keys, err := vapid.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	var buf bytes.Buffer
	if err := writeEnv(&buf, keys, ""); err != nil {
		t.Fatalf("writeEnv() error = %v", err)
	}
	if bytes.Contains(buf.Bytes(), []byte("VAPID_SUBJECT")) {
		t.Fatalf("output = %s, want no subject line", buf.String())
	}
}
