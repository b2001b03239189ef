package syncer

// checkBaseVersion is the conflict gate: a delta is accepted only when the
// client's base version equals the server's current version. It must run
// inside the same per-bill critical section as the merge and commit;
// checked outside it, two clients could both pass against the same version.
//
// On mismatch the returned error carries the authoritative current version
// so the client can re-fetch instead of retrying blindly. Nothing is
// mutated either way.
func checkBaseVersion(billID string, currentVersion, baseVersion int64) error {
	if baseVersion != currentVersion {
		return &VersionConflictError{
			BillID:         billID,
			CurrentVersion: currentVersion,
			BaseVersion:    baseVersion,
		}
	}
	return nil
}
