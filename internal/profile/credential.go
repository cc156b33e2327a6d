package profile

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"time"
)

// appSecret keys the password MAC. It must match what the remote
// service expects verbatim, otherwise every login is rejected.
const appSecret = "HABh2b3czM4jhBXN3rfrMmWMXJVCMnLQTPYFmmdanKEFUgd6RzzvBXDWfyqgBVvq"

// Credential is one stored remote login. Only the MAC of the password
// is persisted; disabling keeps the hash so a credential can be revived
// without re-entering the password elsewhere.
type Credential struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Enabled      bool      `json:"enabled"`
	LastRenewed  time.Time `json:"lastRenewed"`
}

// HashPassword derives the wire form of a password: HMAC-SHA512 under
// the fixed application secret, base64 encoded.
func HashPassword(password string) string {
	mac := hmac.New(sha512.New, []byte(appSecret))
	mac.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
