package domain

import "context"

type Service interface {
	// Set records a write for (appUserID, key). Writing the value already
	// stored is a no-op and does not touch the sync flag.
	Set(ctx context.Context, appUserID, key, value string) error
	SetAttributes(ctx context.Context, appUserID string, attrs map[string]string) error

	UnsyncedForUser(ctx context.Context, appUserID string) (map[string]Value, error)
	UnsyncedForAllUsers(ctx context.Context) (map[string]map[string]Value, error)

	// MarkSynced flags the snapshot's keys as synced, skipping keys whose
	// stored value changed since the snapshot was taken and keys the backend
	// rejected.
	MarkSynced(ctx context.Context, appUserID string, snapshot map[string]Value, rejectedKeys []string) error

	// SyncForAllUsers sweeps every app user with unsynced attributes, not only
	// the current one, and returns how many users it attempted. After a
	// successful sync for a non-current user that user's rows are purged.
	SyncForAllUsers(ctx context.Context, currentAppUserID string) (int, error)
}
