// Package cloud is the HTTP client for the Felshare vendor API.
//
// Login exchanges the account email and password for a session token used
// as the broker's Cookie credential. Rejections (401/403) and rate limits
// (429) start a cooldown that Login honours locally:
//
//	401/403 -> min(1h, max backoff)
//	429     -> Retry-After, at least 2m, at most max(5m, max backoff)
//
// ListDevices reads the account's devices, tolerating the several field
// spellings the API has used.
package cloud
