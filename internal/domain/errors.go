package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrAssetFetch indicates a generation asset could not be retrieved
	ErrAssetFetch = errors.New("asset fetch failed")

	// ErrGenerationNotReady indicates a generation was never fully populated
	ErrGenerationNotReady = errors.New("cache generation is not ready")

	// ErrNetworkUnavailable indicates the content origin or the login endpoints are unreachable
	ErrNetworkUnavailable = errors.New("network is unreachable")

	// ErrStorageUnavailable indicates durable local storage cannot be used
	ErrStorageUnavailable = errors.New("local storage is unavailable")

	// ErrSyncUnavailable indicates the remote progress service is unreachable
	ErrSyncUnavailable = errors.New("sync service is unreachable")

	// ErrAuthFailed indicates authentication failed or the token is invalid
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrJourneyComplete indicates the last position has already been reached
	ErrJourneyComplete = errors.New("journey is complete")

	// ErrInvalidPosition indicates a negative position
	ErrInvalidPosition = errors.New("position must not be negative")

	// ErrInstallInProgress indicates another install or activate is running
	ErrInstallInProgress = errors.New("install already in progress")

	// ErrInvalidTransition indicates a lifecycle event arrived in the wrong state
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)
