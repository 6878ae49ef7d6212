package testutil

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
)

// MD5Hex returns the MD5 digest of data as a lowercase hex string.
// Matches the content hash format used by the index.
func MD5Hex(data []byte) string {
	h := md5.Sum(data)
	return hex.EncodeToString(h[:])
}

// MD5Base64 returns the MD5 digest of data as standard base64, the
// encoding the metadata endpoint uses for post digests.
func MD5Base64(data []byte) string {
	h := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(h[:])
}
