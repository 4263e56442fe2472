// Copyright 2025 omar16100
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth resolves API tokens for a profile and stores them in the
// system keyring when one is available.
package auth

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"github.com/omar16100/atlassian-cli/pkg/config"
)

// ErrNoToken is returned when no token source yields a credential.
var ErrNoToken = errors.Base("no API token found")

const (
	// keyringService namespaces our entries in the OS keyring.
	keyringService = "atlassian-cli"

	// EnvToken is the profile-independent token override.
	EnvToken = "ATLASSIAN_API_TOKEN"

	// envTokenPrefix, joined with the uppercased profile name, names the
	// per-profile override, e.g. ATLASSIAN_CLI_TOKEN_WORK.
	envTokenPrefix = "ATLASSIAN_CLI_TOKEN_"
)

// Keyring is the subset of the system keyring we use. The default
// implementation delegates to the OS credential store; tests substitute
// an in-memory one.
type Keyring interface {
	Set(service, user, password string) error
	Get(service, user string) (string, error)
	Delete(service, user string) error
}

// 🔐 Store reads and writes per-profile API tokens.
type Store struct {
	ring Keyring
}

// NewStore returns a Store backed by the system keyring.
func NewStore() *Store {
	return &Store{ring: systemKeyring{}}
}

// NewStoreWithKeyring returns a Store backed by the given keyring.
func NewStoreWithKeyring(ring Keyring) *Store {
	return &Store{ring: ring}
}

// Set stores the token for a profile in the keyring.
func (s *Store) Set(ctx context.Context, profile, token string) error {
	zerolog.Ctx(ctx).Debug().Str("profile", profile).Msg("storing token in keyring")
	if err := s.ring.Set(keyringService, profile, token); err != nil {
		return errors.Errorf("storing token in keyring: %w", err)
	}
	return nil
}

// Get retrieves the token for a profile from the keyring. The second
// return is false when no entry exists.
func (s *Store) Get(ctx context.Context, profile string) (string, bool, error) {
	token, err := s.ring.Get(keyringService, profile)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, errors.Errorf("reading token from keyring: %w", err)
	}
	return token, true, nil
}

// Delete removes the token for a profile from the keyring. Deleting a
// missing entry is not an error.
func (s *Store) Delete(ctx context.Context, profile string) error {
	zerolog.Ctx(ctx).Debug().Str("profile", profile).Msg("deleting token from keyring")
	if err := s.ring.Delete(keyringService, profile); err != nil && !isNotFound(err) {
		return errors.Errorf("deleting token from keyring: %w", err)
	}
	return nil
}

// ResolveToken finds the API token for a profile, checking in order:
//
//  1. ATLASSIAN_CLI_TOKEN_<PROFILE> (profile name uppercased, dashes
//     mapped to underscores)
//  2. ATLASSIAN_API_TOKEN
//  3. the system keyring
//  4. the api_token field of the profile itself
//
// Environment variables win so that CI jobs never touch the keyring.
func (s *Store) ResolveToken(ctx context.Context, name string, profile config.Profile) (string, error) {
	logger := zerolog.Ctx(ctx)

	if token := os.Getenv(profileEnvVar(name)); token != "" {
		logger.Debug().Str("profile", name).Msg("using token from profile environment variable")
		return token, nil
	}
	if token := os.Getenv(EnvToken); token != "" {
		logger.Debug().Msg("using token from " + EnvToken)
		return token, nil
	}

	token, ok, err := s.Get(ctx, name)
	if err != nil {
		// A broken keyring should not lock the user out when the token
		// is available elsewhere.
		logger.Warn().Err(err).Msg("keyring unavailable, falling back to config file")
	} else if ok {
		logger.Debug().Str("profile", name).Msg("using token from keyring")
		return token, nil
	}

	if profile.APIToken != "" {
		logger.Debug().Str("profile", name).Msg("using token from config file")
		return profile.APIToken, nil
	}

	return "", errors.Errorf("%w for profile %q: set %s or run `atlassian-cli auth login`",
		ErrNoToken, name, EnvToken)
}

// profileEnvVar maps a profile name to its env var override.
func profileEnvVar(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return envTokenPrefix + upper
}
