// Fleetvault - Backup Orchestration for Networked Recording Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetvault

// Package sshkeys provisions the key pair rsync uses to reach devices.
package sshkeys

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/tomtom215/fleetvault/internal/logging"
)

// KeyPair holds the paths of a provisioned key pair.
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string
	// Created is true when the pair was generated by this call.
	Created bool
}

// Ensure makes sure an ed25519 key pair exists at privatePath and
// privatePath + ".pub". An existing private key is kept if it parses; a
// missing public half is regenerated from it.
func Ensure(privatePath, comment string) (KeyPair, error) {
	kp := KeyPair{PrivateKeyPath: privatePath, PublicKeyPath: privatePath + ".pub"}

	data, err := os.ReadFile(privatePath)
	switch {
	case err == nil:
		signer, perr := ssh.ParsePrivateKey(data)
		if perr != nil {
			return kp, fmt.Errorf("existing key %s is unusable: %w", privatePath, perr)
		}
		if _, serr := os.Stat(kp.PublicKeyPath); errors.Is(serr, os.ErrNotExist) {
			if err := writePublic(kp.PublicKeyPath, signer.PublicKey(), comment); err != nil {
				return kp, err
			}
			logging.Info().Str("path", kp.PublicKeyPath).Msg("Restored missing SSH public key")
		}
		return kp, nil
	case !errors.Is(err, os.ErrNotExist):
		return kp, fmt.Errorf("read %s: %w", privatePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(privatePath), 0o700); err != nil {
		return kp, fmt.Errorf("create key directory: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return kp, fmt.Errorf("generate key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return kp, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(privatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return kp, fmt.Errorf("write private key: %w", err)
	}
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return kp, fmt.Errorf("encode public key: %w", err)
	}
	if err := writePublic(kp.PublicKeyPath, sshPub, comment); err != nil {
		return kp, err
	}

	kp.Created = true
	logging.Info().
		Str("path", privatePath).
		Str("fingerprint", ssh.FingerprintSHA256(sshPub)).
		Msg("Generated SSH key pair for device transfers")
	return kp, nil
}

func writePublic(path string, key ssh.PublicKey, comment string) error {
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	if comment != "" {
		line += " " + comment
	}
	if err := os.WriteFile(path, []byte(line+"\n"), 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

// DefaultComment is user@host of the running process.
func DefaultComment() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "fleetvault"
	}
	return user + "@" + host
}
