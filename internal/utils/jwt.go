package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA-256 hashing for reset tokens
    "encoding/hex"  // hex encoding
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// SessionToken is a signed HS256 JWT returned by login, together with its
// expiry so clients can schedule a re-login.
type SessionToken struct {
    Token string
    Exp   time.Time
}

// ResetToken is the one-time secret mailed to a user who forgot their
// password.  Raw goes into the link; only Hash is persisted.
type ResetToken struct {
    Raw  string
    Hash string
    Exp  time.Time
}

// NewSessionToken signs the session claims {id, correo, rol_id} with the
// shared secret.  The token expires after ttl.
func NewSessionToken(secret string, userID int64, email string, roleID int64, ttl time.Duration) (SessionToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "id":     userID,
        "correo": email,
        "rol_id": roleID,
        "exp":    exp.Unix(),
        "iat":    now.Unix(),
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return SessionToken{}, err
    }
    return SessionToken{Token: signed, Exp: exp}, nil
}

// NewResetToken returns 32 random bytes hex-encoded plus their hash.
func NewResetToken(ttl time.Duration) (ResetToken, error) {
    raw, err := randomHex(32)
    if err != nil {
        return ResetToken{}, err
    }
    return ResetToken{Raw: raw, Hash: HashToken(raw), Exp: time.Now().UTC().Add(ttl)}, nil
}

// HashToken returns the SHA-256 of raw as lowercase hex.  Storing only the
// hash means a leaked table cannot be replayed.
func HashToken(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
