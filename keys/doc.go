// Package keys is the API key management service.
//
// Create issues a random "tg_" key and stores only its hash; the raw key is
// returned once and cannot be recovered. List and Get never expose the raw
// key or the hash. Revoke deactivates a key without deleting it.
//
// Recorder implements auth.LastUsedRecorder. It applies last-used
// timestamps in the background so authentication never waits on a store
// write.
package keys
