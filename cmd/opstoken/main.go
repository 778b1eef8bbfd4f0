// Package main mints operator tokens for the SkyBrief admin endpoints.
//
// Usage:
//
//	JWT_SIGNING_KEY=... opstoken -operator ops@example.com -ttl 2h
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/auth"
	"github.com/skybrief/skybrief/internal/config"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	operator := flag.String("operator", "", "operator identity recorded in the token subject")
	scopes := flag.String("scopes", auth.ScopeCacheAdmin, "comma-separated scopes to grant")
	ttl := flag.Duration("ttl", auth.DefaultTTL, "token lifetime")
	flag.Parse()

	cfg, err := config.LoadDotEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.JWTSigningKey,
		TTL:        *ttl,
	})

	var granted []string
	for _, s := range strings.Split(*scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			granted = append(granted, s)
		}
	}

	token, expiresAt, err := tokens.Issue(*operator, granted...)
	if err != nil {
		log.Fatal().Err(err).Msg("issuing token")
	}

	log.Info().
		Str("operator", *operator).
		Strs("scopes", granted).
		Time("expires_at", expiresAt.UTC().Truncate(time.Second)).
		Msg("operator token issued")
	fmt.Println(token)
}
