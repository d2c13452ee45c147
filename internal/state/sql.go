package state

const fileStateColumns = `sync_id, path, state, content_hash, mtime_unix_nano,
	ctime_unix_nano, is_directory, vector_clock,
	deleted_at_unix_nano, deleted_by_peer, delete_vector_clock,
	updated_at_unix_nano`

const (
	sqlGetState = `SELECT ` + fileStateColumns + `
		FROM file_states WHERE sync_id = ? AND path = ?`

	sqlUpsertState = `INSERT INTO file_states (` + fileStateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sync_id, path) DO UPDATE SET
			state                = excluded.state,
			content_hash         = excluded.content_hash,
			mtime_unix_nano      = excluded.mtime_unix_nano,
			ctime_unix_nano      = excluded.ctime_unix_nano,
			is_directory         = excluded.is_directory,
			vector_clock         = excluded.vector_clock,
			deleted_at_unix_nano = excluded.deleted_at_unix_nano,
			deleted_by_peer      = excluded.deleted_by_peer,
			delete_vector_clock  = excluded.delete_vector_clock,
			updated_at_unix_nano = excluded.updated_at_unix_nano`

	sqlRemoveState = `DELETE FROM file_states WHERE sync_id = ? AND path = ?`

	sqlIsDeleted = `SELECT 1 FROM file_states
		WHERE sync_id = ? AND path = ? AND state = 'deleted'`

	sqlAllStates = `SELECT ` + fileStateColumns + `
		FROM file_states WHERE sync_id = ?`

	sqlDeletedPaths = `SELECT path FROM file_states
		WHERE sync_id = ? AND state = 'deleted'`

	sqlDeleteAllForSync = `DELETE FROM file_states WHERE sync_id = ?`
)

const (
	sqlRecordAck = `INSERT INTO peer_acks (sync_id, path, peer_id, acked_at_unix_nano)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(sync_id, path, peer_id) DO UPDATE
		SET acked_at_unix_nano = excluded.acked_at_unix_nano`

	sqlAckingPeers = `SELECT peer_id FROM peer_acks WHERE sync_id = ? AND path = ?`

	sqlClearAcks = `DELETE FROM peer_acks WHERE sync_id = ? AND path = ?`
)
