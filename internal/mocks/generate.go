// Package mocks provides gomock implementations of the auth ports.
//
// The mocks are generated with go.uber.org/mock (gomock) and checked in so tests build without
// running the generator. Hand-written fakes with in-memory behavior live in internal/mocks/auth.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	profiles := mocks.NewMockProfileStore(ctrl)
//	profiles.EXPECT().GetProfile(gomock.Any(), "subject-1").Return(ports.Profile{}, ports.ErrProfileNotFound)
package mocks

// CredentialProvider: VerifyCredentials, CreateSubject, InvalidateSession
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_provider_mock.go github.com/target/enquiry-gateway/internal/ports CredentialProvider

// OAuthProvider: AuthorizeURL, ExchangeOAuthCode
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=oauth_provider_mock.go github.com/target/enquiry-gateway/internal/ports OAuthProvider

// ProfileStore: CreateProfileRecord, GetProfile
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_store_mock.go github.com/target/enquiry-gateway/internal/ports ProfileStore

// RevocationStore: Revoke, IsRevoked
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=revocation_store_mock.go github.com/target/enquiry-gateway/internal/ports RevocationStore
